package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gigflow/models"
	"gigflow/utils"
)

type MongoSubmissions struct {
	coll *mongo.Collection
}

func NewMongoSubmissions(coll *mongo.Collection) *MongoSubmissions {
	return &MongoSubmissions{coll: coll}
}

func (s *MongoSubmissions) Create(ctx context.Context, sub models.Submission) (models.Submission, error) {
	sub.SubmissionID = utils.GetUUID()
	sub.Status = models.SubmissionWaiting
	sub.CreatedAt = time.Now()
	if _, err := s.coll.InsertOne(ctx, sub); err != nil {
		return models.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	return sub, nil
}

func (s *MongoSubmissions) Get(ctx context.Context, submissionID string) (models.Submission, error) {
	var sub models.Submission
	if err := s.coll.FindOne(ctx, bson.M{"submissionid": submissionID}).Decode(&sub); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Submission{}, ErrNotFound
		}
		return models.Submission{}, fmt.Errorf("find submission: %w", err)
	}
	return sub, nil
}

func (s *MongoSubmissions) List(ctx context.Context, f SubmissionFilter) ([]models.Submission, error) {
	filter := bson.M{}
	if f.JobID != "" {
		filter["jobid"] = f.JobID
	}
	if f.UserID != "" {
		filter["userid"] = f.UserID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return utils.FindAndDecode[models.Submission](ctx, s.coll, filter, latest(0))
}

func (s *MongoSubmissions) Remove(ctx context.Context, submissionID string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"submissionid": submissionID}); err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	return nil
}

// Review moves a waiting submission to its terminal status.
func (s *MongoSubmissions) Review(ctx context.Context, submissionID string, to models.SubmissionStatus, message string) (models.Submission, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{
		"status":        to,
		"reviewMessage": message,
		"reviewedAt":    time.Now(),
	}}
	filter := bson.M{"submissionid": submissionID, "status": models.SubmissionWaiting}

	var sub models.Submission
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&sub)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Submission{}, fmt.Errorf("review submission: %w", err)
	}
	if _, err := s.Get(ctx, submissionID); err != nil {
		return models.Submission{}, err
	}
	return models.Submission{}, ErrStatus
}
