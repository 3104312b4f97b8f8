// Package chat provisions conversation rooms between a job owner and the
// freelancers working on the job.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gigflow/models"
	"gigflow/utils"
)

type Provisioner interface {
	// Provision returns the room for jobID and users, creating it on first
	// use. Calling it again with the same participants returns the same room.
	Provision(ctx context.Context, jobID string, users ...string) (string, error)
}

// Key identifies a room by job and participant set, independent of order.
func Key(jobID string, users []string) string {
	return jobID + "|" + strings.Join(utils.SortedUnique(users), ",")
}

// Rooms provisions chats in Mongo. The unique index on key makes the upsert
// safe against concurrent starts.
type Rooms struct {
	coll *mongo.Collection
}

func NewRooms(coll *mongo.Collection) *Rooms { return &Rooms{coll: coll} }

func (r *Rooms) Provision(ctx context.Context, jobID string, users ...string) (string, error) {
	members := utils.SortedUnique(users)
	if len(members) < 2 {
		return "", fmt.Errorf("chat for job %s needs two participants, got %v", jobID, members)
	}
	key := Key(jobID, members)
	now := time.Now()

	var chat models.Chat
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"key": key},
		bson.M{
			"$setOnInsert": bson.M{
				"chatid":    utils.GetUUID(),
				"key":       key,
				"jobid":     jobID,
				"users":     members,
				"createdAt": now,
			},
			"$set": bson.M{"updatedAt": now},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&chat)
	if err != nil {
		return "", fmt.Errorf("provision chat %s: %w", key, err)
	}
	return chat.ChatID, nil
}

func (r *Rooms) ListForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	return utils.FindAndDecode[models.Chat](ctx, r.coll, bson.M{"users": userID}, opts)
}

// Memory is an in-process Provisioner. Fail, when set, is consulted per call
// and lets tests break provisioning for chosen users.
type Memory struct {
	mu    sync.Mutex
	rooms map[string]models.Chat
	Fail  func(jobID string, users []string) error
}

func NewMemory() *Memory { return &Memory{rooms: make(map[string]models.Chat)} }

func (m *Memory) Provision(_ context.Context, jobID string, users ...string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := utils.SortedUnique(users)
	if m.Fail != nil {
		if err := m.Fail(jobID, members); err != nil {
			return "", err
		}
	}
	if len(members) < 2 {
		return "", fmt.Errorf("chat for job %s needs two participants, got %v", jobID, members)
	}
	key := Key(jobID, members)
	if c, ok := m.rooms[key]; ok {
		return c.ChatID, nil
	}
	now := time.Now()
	c := models.Chat{
		ChatID:    fmt.Sprintf("chat-%d", len(m.rooms)+1),
		Key:       key,
		JobID:     jobID,
		Users:     members,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.rooms[key] = c
	return c.ChatID, nil
}

func (m *Memory) ListForUser(_ context.Context, userID string) ([]models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Chat{}
	for _, c := range m.rooms {
		if utils.Contains(c.Users, userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Count is the number of distinct rooms.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}
