// Package notify delivers inbox notifications to users.
package notify

import (
	"context"

	"gigflow/models"
)

const (
	Application         = "application"
	ApplicationAccepted = "application-accepted"
	ApplicationRejected = "application-rejected"
	Invitation          = "invitation"
	InvitationAccepted  = "invitation-accepted"
	InvitationRejected  = "invitation-rejected"
	JobStarted          = "job-started"
	JobFinished         = "job-finished"
	JobCancelled        = "job-cancelled"
	Submission          = "submission"
	SubmissionReviewed  = "submission-reviewed"
)

type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

// Box is a Notifier that users can also read back.
type Box interface {
	Notifier
	List(ctx context.Context, userID string, limit int64) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

func New(to, from, jobID, category, body string) models.Notification {
	return models.Notification{ReceiverID: to, SenderID: from, JobID: jobID, Category: category, Body: body}
}
