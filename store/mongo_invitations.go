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

type MongoInvitations struct {
	coll *mongo.Collection
}

func NewMongoInvitations(coll *mongo.Collection) *MongoInvitations {
	return &MongoInvitations{coll: coll}
}

func (s *MongoInvitations) Create(ctx context.Context, inv models.Invitation) (models.Invitation, error) {
	inv.InvitationID = utils.GetUUID()
	inv.Status = models.InvitationPending
	inv.CreatedAt = time.Now()
	if _, err := s.coll.InsertOne(ctx, inv); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Invitation{}, ErrDuplicate
		}
		return models.Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return inv, nil
}

func (s *MongoInvitations) findOne(ctx context.Context, filter bson.M) (models.Invitation, error) {
	var inv models.Invitation
	if err := s.coll.FindOne(ctx, filter).Decode(&inv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Invitation{}, ErrNotFound
		}
		return models.Invitation{}, fmt.Errorf("find invitation: %w", err)
	}
	return inv, nil
}

func (s *MongoInvitations) Get(ctx context.Context, invitationID string) (models.Invitation, error) {
	return s.findOne(ctx, bson.M{"invitationid": invitationID})
}

func (s *MongoInvitations) FindByUserAndJob(ctx context.Context, userID, jobID string) (models.Invitation, error) {
	return s.findOne(ctx, bson.M{"inviteeId": userID, "jobid": jobID})
}

func (s *MongoInvitations) ListByInvitee(ctx context.Context, userID string) ([]models.Invitation, error) {
	return utils.FindAndDecode[models.Invitation](ctx, s.coll, bson.M{"inviteeId": userID}, latest(0))
}

func (s *MongoInvitations) ListByJob(ctx context.Context, jobID string) ([]models.Invitation, error) {
	return utils.FindAndDecode[models.Invitation](ctx, s.coll, bson.M{"jobid": jobID}, latest(0))
}

func (s *MongoInvitations) SetStatus(ctx context.Context, invitationID string, from, to models.InvitationStatus) (models.Invitation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{"status": to, "respondedAt": time.Now()}}

	var inv models.Invitation
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"invitationid": invitationID, "status": from}, update, opts).Decode(&inv)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Invitation{}, fmt.Errorf("update invitation: %w", err)
	}
	if _, err := s.Get(ctx, invitationID); err != nil {
		return models.Invitation{}, err
	}
	return models.Invitation{}, ErrStatus
}
