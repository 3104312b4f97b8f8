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

type MongoJobs struct {
	coll *mongo.Collection
}

func NewMongoJobs(coll *mongo.Collection) *MongoJobs {
	return &MongoJobs{coll: coll}
}

func (s *MongoJobs) Create(ctx context.Context, job models.Job) (models.Job, error) {
	now := time.Now()
	job.JobID = utils.GetUUID()
	job.Status = models.JobOpen
	job.Accepted = []string{}
	if job.Tags == nil {
		job.Tags = []string{}
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, job); err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *MongoJobs) Get(ctx context.Context, jobID string) (models.Job, error) {
	var job models.Job
	if err := s.coll.FindOne(ctx, bson.M{"jobid": jobID}).Decode(&job); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Job{}, ErrNotFound
		}
		return models.Job{}, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}

func latest(limit int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func (s *MongoJobs) ListOpen(ctx context.Context, limit int) ([]models.Job, error) {
	return utils.FindAndDecode[models.Job](ctx, s.coll, bson.M{"status": models.JobOpen}, latest(limit))
}

func (s *MongoJobs) ListByOwner(ctx context.Context, ownerID string) ([]models.Job, error) {
	return utils.FindAndDecode[models.Job](ctx, s.coll, bson.M{"ownerId": ownerID}, latest(0))
}

func (s *MongoJobs) ListByMember(ctx context.Context, userID string, statuses ...models.JobStatus) ([]models.Job, error) {
	filter := bson.M{"accepted": userID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	return utils.FindAndDecode[models.Job](ctx, s.coll, filter, latest(0))
}

func (s *MongoJobs) ListSimilar(ctx context.Context, jobID string, tags []string, limit int) ([]models.Job, error) {
	if len(tags) == 0 {
		return []models.Job{}, nil
	}
	filter := bson.M{
		"jobid": bson.M{"$ne": jobID},
		"tags":  bson.M{"$in": tags},
	}
	return utils.FindAndDecode[models.Job](ctx, s.coll, filter, latest(limit))
}

func (s *MongoJobs) AppendAccepted(ctx context.Context, jobID, userID string) error {
	filter := bson.M{
		"jobid":    jobID,
		"status":   models.JobOpen,
		"accepted": bson.M{"$ne": userID},
		"$expr":    bson.M{"$lt": bson.A{bson.M{"$size": "$accepted"}, "$slots"}},
	}
	update := bson.M{
		"$push": bson.M{"accepted": userID},
		"$set":  bson.M{"updatedAt": time.Now()},
	}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("append roster: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	switch {
	case job.IsMember(userID):
		return ErrAlreadyMember
	case job.Status != models.JobOpen:
		return ErrStatus
	case len(job.Accepted) >= job.Slots:
		return ErrSlotFull
	}
	return errors.New("roster changed concurrently")
}

func (s *MongoJobs) Start(ctx context.Context, jobID string, rosterSize int, escrowTxn string) error {
	now := time.Now()
	filter := bson.M{
		"jobid":    jobID,
		"status":   models.JobOpen,
		"accepted": bson.M{"$size": rosterSize},
	}
	update := bson.M{"$set": bson.M{
		"status":    models.JobOngoing,
		"escrowTxn": escrowTxn,
		"startedAt": now,
		"updatedAt": now,
	}}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.Get(ctx, jobID); err != nil {
			return err
		}
		return ErrStatus
	}
	return nil
}

func (s *MongoJobs) Transition(ctx context.Context, jobID string, from, to models.JobStatus) error {
	now := time.Now()
	set := bson.M{"status": to, "updatedAt": now}
	if to == models.JobFinished {
		set["finishedAt"] = now
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"jobid": jobID, "status": from}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("transition job: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.Get(ctx, jobID); err != nil {
			return err
		}
		return ErrStatus
	}
	return nil
}
