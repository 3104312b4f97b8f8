package models

import "time"

type Notification struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	ReceiverID string    `bson:"receiverId" json:"receiverId"`
	SenderID   string    `bson:"senderId" json:"senderId"`
	JobID      string    `bson:"jobid,omitempty" json:"jobid,omitempty"`
	Category   string    `bson:"category" json:"category"`
	Body       string    `bson:"body" json:"body"`
	Read       bool      `bson:"read" json:"read"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

// Chat is a conversation room provisioned for a job participant pair.
type Chat struct {
	ChatID    string    `bson:"chatid" json:"chatid"`
	Key       string    `bson:"key" json:"-"`
	JobID     string    `bson:"jobid" json:"jobid"`
	Users     []string  `bson:"users" json:"users"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// JobEvent is published after every lifecycle mutation so that viewers can
// refetch the job.
type JobEvent struct {
	JobID   string    `json:"jobid"`
	Action  string    `json:"action"`
	ActorID string    `json:"actorId,omitempty"`
	At      time.Time `json:"at"`
}
