package models

import (
	"slices"
	"time"
)

type JobStatus string

const (
	JobOpen      JobStatus = "open"
	JobOngoing   JobStatus = "ongoing"
	JobFinished  JobStatus = "finished"
	JobCancelled JobStatus = "cancelled"
)

// Job is a unit of work posted by an owner. Accepted is the roster and is
// bounded by Slots.
type Job struct {
	JobID       string     `bson:"jobid" json:"jobid"`
	OwnerID     string     `bson:"ownerId" json:"ownerId"`
	Name        string     `bson:"name" json:"name"`
	Description string     `bson:"description,omitempty" json:"description,omitempty"`
	Salary      float64    `bson:"salary" json:"salary"`
	Slots       int        `bson:"slots" json:"slots"`
	Status      JobStatus  `bson:"status" json:"status"`
	Tags        []string   `bson:"tags" json:"tags"`
	Accepted    []string   `bson:"accepted" json:"accepted"`
	EscrowTxn   string     `bson:"escrowTxn,omitempty" json:"escrowTxn,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
	StartedAt   *time.Time `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	FinishedAt  *time.Time `bson:"finishedAt,omitempty" json:"finishedAt,omitempty"`
}

func (j Job) IsMember(userID string) bool {
	return slices.Contains(j.Accepted, userID)
}

func (j Job) SlotsLeft() int {
	left := j.Slots - len(j.Accepted)
	if left < 0 {
		return 0
	}
	return left
}

// SharesTag reports whether the two jobs have at least one tag in common.
func (j Job) SharesTag(other Job) bool {
	for _, t := range j.Tags {
		if slices.Contains(other.Tags, t) {
			return true
		}
	}
	return false
}

// JobDraft carries the owner-supplied fields of a new job.
type JobDraft struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Salary      float64  `json:"salary"`
	Slots       int      `json:"slots"`
	Tags        []string `json:"tags"`
}

type Applicant struct {
	JobID     string    `bson:"jobid" json:"jobid"`
	UserID    string    `bson:"userid" json:"userid"`
	Pitch     string    `bson:"pitch,omitempty" json:"pitch,omitempty"`
	AppliedAt time.Time `bson:"appliedAt" json:"appliedAt"`
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

type Invitation struct {
	InvitationID string           `bson:"invitationid" json:"invitationid"`
	JobID        string           `bson:"jobid" json:"jobid"`
	InviterID    string           `bson:"inviterId" json:"inviterId"`
	InviteeID    string           `bson:"inviteeId" json:"inviteeId"`
	Status       InvitationStatus `bson:"status" json:"status"`
	CreatedAt    time.Time        `bson:"createdAt" json:"createdAt"`
	RespondedAt  *time.Time       `bson:"respondedAt,omitempty" json:"respondedAt,omitempty"`
}

type SubmissionStatus string

const (
	SubmissionWaiting  SubmissionStatus = "waiting"
	SubmissionAccepted SubmissionStatus = "accepted"
	SubmissionRejected SubmissionStatus = "rejected"
)

type Submission struct {
	SubmissionID  string           `bson:"submissionid" json:"submissionid"`
	JobID         string           `bson:"jobid" json:"jobid"`
	UserID        string           `bson:"userid" json:"userid"`
	Message       string           `bson:"message" json:"message"`
	FileRef       string           `bson:"fileRef,omitempty" json:"fileRef,omitempty"`
	Status        SubmissionStatus `bson:"status" json:"status"`
	ReviewMessage string           `bson:"reviewMessage,omitempty" json:"reviewMessage,omitempty"`
	CreatedAt     time.Time        `bson:"createdAt" json:"createdAt"`
	ReviewedAt    *time.Time       `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
}

// Rating is written once per (job, freelancer) when the job finishes.
type Rating struct {
	RatingID  string    `bson:"ratingid" json:"ratingid"`
	JobID     string    `bson:"jobid" json:"jobid"`
	UserID    string    `bson:"userid" json:"userid"`
	RaterID   string    `bson:"raterId" json:"raterId"`
	Score     int       `bson:"score" json:"score"`
	Comment   string    `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
