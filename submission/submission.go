// Package submission handles deliverables freelancers hand in on ongoing jobs
// and the owner's review of them.
package submission

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"gigflow/apperr"
	"gigflow/models"
	"gigflow/retry"
	"gigflow/store"
)

var (
	ErrNotMember = apperr.New(apperr.CodeForbidden, "only accepted freelancers can submit")
	ErrReviewed  = apperr.New(apperr.CodePrecondition, "submission already reviewed")
	ErrNotFound  = apperr.New(apperr.CodeNotFound, "submission not found")
)

type Service struct {
	jobs        store.JobStore
	submissions store.SubmissionStore
	retry       retry.Policy
}

func New(jobs store.JobStore, submissions store.SubmissionStore, pol retry.Policy) *Service {
	return &Service{jobs: jobs, submissions: submissions, retry: pol}
}

func (s *Service) job(ctx context.Context, jobID string) (models.Job, error) {
	job, err := retry.Get(ctx, s.retry, func(ctx context.Context) (models.Job, error) {
		return s.jobs.Get(ctx, jobID)
	})
	return job, store.Outcome(err, "job")
}

// Create checks the job is ongoing and the caller is on its roster before
// writing, rather than trusting the caller to have checked. The check runs
// again after the insert; a submission that raced a finish or cancel is
// removed.
func (s *Service) Create(ctx context.Context, userID, jobID, fileRef, message string) (models.Submission, error) {
	message = strings.TrimSpace(message)
	if message == "" && fileRef == "" {
		return models.Submission{}, apperr.New(apperr.CodeInvalid, "a message or file is required")
	}
	job, err := s.job(ctx, jobID)
	if err != nil {
		return models.Submission{}, err
	}
	if err := canSubmit(job, userID); err != nil {
		return models.Submission{}, err
	}

	var sub models.Submission
	err = s.retry.Once(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.submissions.Create(ctx, models.Submission{JobID: jobID, UserID: userID, FileRef: fileRef, Message: message})
		return err
	})
	if err != nil {
		return sub, store.Outcome(err, "submission")
	}

	job, err = s.job(ctx, jobID)
	if err != nil {
		log.Warn().Err(err).Str("job", jobID).Str("submission", sub.SubmissionID).Msg("could not recheck job after submission")
		return sub, nil
	}
	if cerr := canSubmit(job, userID); cerr != nil {
		err := s.retry.Do(ctx, func(ctx context.Context) error {
			return s.submissions.Remove(ctx, sub.SubmissionID)
		})
		if err != nil {
			log.Error().Err(err).Str("job", jobID).Str("submission", sub.SubmissionID).Msg("late submission could not be removed")
			return sub, apperr.Wrap(apperr.CodePartial, "job closed while submitting and the submission could not be withdrawn", err)
		}
		return models.Submission{}, cerr
	}
	return sub, nil
}

func canSubmit(job models.Job, userID string) error {
	if job.Status != models.JobOngoing {
		return apperr.ErrJobNotOngoing
	}
	if !job.IsMember(userID) {
		return ErrNotMember
	}
	return nil
}

// UpdateStatus records the owner's verdict. Only a waiting submission on an
// ongoing job can be reviewed, and only once.
func (s *Service) UpdateStatus(ctx context.Context, ownerID, submissionID string, to models.SubmissionStatus, message string) (models.Submission, error) {
	if to != models.SubmissionAccepted && to != models.SubmissionRejected {
		return models.Submission{}, apperr.New(apperr.CodeInvalid, "status must be accepted or rejected")
	}
	sub, err := retry.Get(ctx, s.retry, func(ctx context.Context) (models.Submission, error) {
		return s.submissions.Get(ctx, submissionID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return sub, ErrNotFound
	}
	if err != nil {
		return sub, store.Outcome(err, "submission")
	}
	job, err := s.job(ctx, sub.JobID)
	if err != nil {
		return sub, err
	}
	if job.OwnerID != ownerID {
		return sub, apperr.ErrNotOwner
	}
	if job.Status != models.JobOngoing {
		return sub, apperr.ErrJobNotOngoing
	}
	if sub.Status != models.SubmissionWaiting {
		return sub, ErrReviewed
	}

	err = s.retry.Once(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.submissions.Review(ctx, submissionID, to, message)
		return err
	})
	if errors.Is(err, store.ErrStatus) {
		return sub, ErrReviewed
	}
	return sub, store.Outcome(err, "submission")
}

func (s *Service) list(ctx context.Context, f store.SubmissionFilter) ([]models.Submission, error) {
	out, err := retry.Get(ctx, s.retry, func(ctx context.Context) ([]models.Submission, error) {
		return s.submissions.List(ctx, f)
	})
	return out, store.Outcome(err, "submissions")
}

func (s *Service) ListByJob(ctx context.Context, jobID string) ([]models.Submission, error) {
	return s.list(ctx, store.SubmissionFilter{JobID: jobID})
}

func (s *Service) ListWaitingByJob(ctx context.Context, jobID string) ([]models.Submission, error) {
	return s.list(ctx, store.SubmissionFilter{JobID: jobID, Status: models.SubmissionWaiting})
}

func (s *Service) ListAcceptedByJob(ctx context.Context, jobID string) ([]models.Submission, error) {
	return s.list(ctx, store.SubmissionFilter{JobID: jobID, Status: models.SubmissionAccepted})
}

func (s *Service) ListRejectedByJob(ctx context.Context, jobID string) ([]models.Submission, error) {
	return s.list(ctx, store.SubmissionFilter{JobID: jobID, Status: models.SubmissionRejected})
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.Submission, error) {
	return s.list(ctx, store.SubmissionFilter{UserID: userID})
}
