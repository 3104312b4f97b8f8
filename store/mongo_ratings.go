package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"gigflow/models"
	"gigflow/utils"
)

type MongoRatings struct {
	coll *mongo.Collection
}

func NewMongoRatings(coll *mongo.Collection) *MongoRatings {
	return &MongoRatings{coll: coll}
}

func (s *MongoRatings) CreateOnce(ctx context.Context, r models.Rating) (models.Rating, error) {
	r.RatingID = utils.GetUUID()
	r.CreatedAt = time.Now()
	if _, err := s.coll.InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Rating{}, ErrDuplicate
		}
		return models.Rating{}, fmt.Errorf("insert rating: %w", err)
	}
	return r, nil
}

func (s *MongoRatings) ListByJob(ctx context.Context, jobID string) ([]models.Rating, error) {
	return utils.FindAndDecode[models.Rating](ctx, s.coll, bson.M{"jobid": jobID}, latest(0))
}

func (s *MongoRatings) ListByUser(ctx context.Context, userID string) ([]models.Rating, error) {
	return utils.FindAndDecode[models.Rating](ctx, s.coll, bson.M{"userid": userID}, latest(0))
}
