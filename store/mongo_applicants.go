package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gigflow/models"
	"gigflow/utils"
)

type MongoApplicants struct {
	coll *mongo.Collection
}

func NewMongoApplicants(coll *mongo.Collection) *MongoApplicants {
	return &MongoApplicants{coll: coll}
}

func (s *MongoApplicants) Add(ctx context.Context, a models.Applicant) error {
	if a.AppliedAt.IsZero() {
		a.AppliedAt = time.Now()
	}
	if _, err := s.coll.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert applicant: %w", err)
	}
	return nil
}

func (s *MongoApplicants) Exists(ctx context.Context, jobID, userID string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"jobid": jobID, "userid": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count applicants: %w", err)
	}
	return n > 0, nil
}

func (s *MongoApplicants) ListByJob(ctx context.Context, jobID string) ([]models.Applicant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "appliedAt", Value: 1}})
	return utils.FindAndDecode[models.Applicant](ctx, s.coll, bson.M{"jobid": jobID}, opts)
}

func (s *MongoApplicants) ListByUser(ctx context.Context, userID string) ([]models.Applicant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "appliedAt", Value: -1}})
	return utils.FindAndDecode[models.Applicant](ctx, s.coll, bson.M{"userid": userID}, opts)
}

func (s *MongoApplicants) Remove(ctx context.Context, jobID, userID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"jobid": jobID, "userid": userID})
	if err != nil {
		return fmt.Errorf("delete applicant: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
