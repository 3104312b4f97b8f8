// Package store is the remote job store: jobs with their rosters, applicants,
// invitations, submissions and ratings.
package store

import (
	"context"
	"errors"

	"gigflow/apperr"
	"gigflow/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate")
	ErrSlotFull      = errors.New("slot full")
	ErrAlreadyMember = errors.New("already on roster")
	// ErrStatus means a conditional write found the record in another state.
	ErrStatus = errors.New("unexpected status")
)

// Permanent reports whether err is a definite answer from the store rather
// than a failure to reach it.
func Permanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrSlotFull) ||
		errors.Is(err, ErrAlreadyMember) ||
		errors.Is(err, ErrStatus)
}

// Outcome translates a store failure into an apperr outcome. what names the
// record in user-facing messages, e.g. "job". Errors that already carry an
// outcome pass through unchanged.
func Outcome(err error, what string) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, what+" not found", err)
	case errors.Is(err, ErrSlotFull):
		return apperr.Wrap(apperr.CodeConflict, apperr.ErrSlotFull.Message, err)
	case errors.Is(err, ErrDuplicate):
		return apperr.Wrap(apperr.CodeConflict, what+" already exists", err)
	case errors.Is(err, ErrAlreadyMember):
		return apperr.Wrap(apperr.CodePrecondition, "already registered", err)
	case errors.Is(err, ErrStatus):
		return apperr.Wrap(apperr.CodePrecondition, what+" changed state", err)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.CodeTransient, "request cancelled", err)
	default:
		return apperr.Wrap(apperr.CodeTransient, what+" store unavailable", err)
	}
}

type JobStore interface {
	Create(ctx context.Context, job models.Job) (models.Job, error)
	Get(ctx context.Context, jobID string) (models.Job, error)
	ListOpen(ctx context.Context, limit int) ([]models.Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Job, error)
	// ListByMember returns jobs whose roster contains userID, filtered to the
	// given statuses when any are passed.
	ListByMember(ctx context.Context, userID string, statuses ...models.JobStatus) ([]models.Job, error)
	// ListSimilar returns jobs of any status sharing at least one tag,
	// excluding jobID, newest first.
	ListSimilar(ctx context.Context, jobID string, tags []string, limit int) ([]models.Job, error)

	// AppendAccepted adds userID to the roster only while the job is open,
	// the user is not on it and a slot is free, as a single atomic write.
	AppendAccepted(ctx context.Context, jobID, userID string) error
	// Start moves an open job with exactly rosterSize members to ongoing.
	Start(ctx context.Context, jobID string, rosterSize int, escrowTxn string) error
	Transition(ctx context.Context, jobID string, from, to models.JobStatus) error
}

type ApplicantStore interface {
	Add(ctx context.Context, a models.Applicant) error
	Exists(ctx context.Context, jobID, userID string) (bool, error)
	ListByJob(ctx context.Context, jobID string) ([]models.Applicant, error)
	ListByUser(ctx context.Context, userID string) ([]models.Applicant, error)
	Remove(ctx context.Context, jobID, userID string) error
}

type InvitationStore interface {
	Create(ctx context.Context, inv models.Invitation) (models.Invitation, error)
	Get(ctx context.Context, invitationID string) (models.Invitation, error)
	FindByUserAndJob(ctx context.Context, userID, jobID string) (models.Invitation, error)
	ListByInvitee(ctx context.Context, userID string) ([]models.Invitation, error)
	ListByJob(ctx context.Context, jobID string) ([]models.Invitation, error)
	SetStatus(ctx context.Context, invitationID string, from, to models.InvitationStatus) (models.Invitation, error)
}

// SubmissionFilter narrows a submission listing. Empty fields match all.
type SubmissionFilter struct {
	JobID  string
	UserID string
	Status models.SubmissionStatus
}

type SubmissionStore interface {
	Create(ctx context.Context, s models.Submission) (models.Submission, error)
	Get(ctx context.Context, submissionID string) (models.Submission, error)
	List(ctx context.Context, f SubmissionFilter) ([]models.Submission, error)
	Review(ctx context.Context, submissionID string, to models.SubmissionStatus, message string) (models.Submission, error)
	// Remove deletes a submission. Removing a missing one is not an error.
	Remove(ctx context.Context, submissionID string) error
}

type RatingStore interface {
	// CreateOnce inserts r unless a rating for (r.JobID, r.UserID) exists, in
	// which case it returns ErrDuplicate.
	CreateOnce(ctx context.Context, r models.Rating) (models.Rating, error)
	ListByJob(ctx context.Context, jobID string) ([]models.Rating, error)
	ListByUser(ctx context.Context, userID string) ([]models.Rating, error)
}
