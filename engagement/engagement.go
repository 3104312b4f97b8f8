// Package engagement owns a job's roster and lifecycle: posting, filling
// slots, committing funds at start and settling at finish.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"gigflow/apperr"
	"gigflow/chat"
	"gigflow/ledger"
	"gigflow/metrics"
	"gigflow/models"
	"gigflow/rating"
	"gigflow/retry"
	"gigflow/store"
	"gigflow/utils"
)

var (
	ErrEmptyRoster    = apperr.New(apperr.CodePrecondition, "no accepted freelancers")
	ErrRosterNotEmpty = apperr.New(apperr.CodePrecondition, "job has accepted freelancers")
	ErrRosterChanged  = apperr.New(apperr.CodeConflict, "roster changed while starting, please retry")
)

type Service struct {
	jobs    store.JobStore
	ledger  ledger.Ledger
	chats   chat.Provisioner
	ratings *rating.Service
	retry   retry.Policy
}

func New(jobs store.JobStore, led ledger.Ledger, chats chat.Provisioner, ratings *rating.Service, pol retry.Policy) *Service {
	return &Service{jobs: jobs, ledger: led, chats: chats, ratings: ratings, retry: pol}
}

func (s *Service) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	job, err := retry.Get(ctx, s.retry, func(ctx context.Context) (models.Job, error) {
		return s.jobs.Get(ctx, jobID)
	})
	return job, store.Outcome(err, "job")
}

func (s *Service) ownedJob(ctx context.Context, ownerID, jobID string) (models.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return job, err
	}
	if job.OwnerID != ownerID {
		return job, apperr.ErrNotOwner
	}
	return job, nil
}

func (s *Service) CreateJob(ctx context.Context, ownerID string, d models.JobDraft) (models.Job, error) {
	d.Name = strings.TrimSpace(d.Name)
	switch {
	case d.Name == "":
		return models.Job{}, apperr.New(apperr.CodeInvalid, "job name required")
	case d.Salary <= 0:
		return models.Job{}, apperr.New(apperr.CodeInvalid, "salary must be positive")
	case d.Slots < 1:
		return models.Job{}, apperr.New(apperr.CodeInvalid, "at least one slot required")
	}
	job := models.Job{
		OwnerID:     ownerID,
		Name:        d.Name,
		Description: d.Description,
		Salary:      d.Salary,
		Slots:       d.Slots,
		Tags:        utils.NormalizeTags(d.Tags),
	}
	var created models.Job
	err := s.retry.Once(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.jobs.Create(ctx, job)
		return err
	})
	return created, store.Outcome(err, "job")
}

// CancelJob withdraws an open job that nobody has joined yet.
func (s *Service) CancelJob(ctx context.Context, ownerID, jobID string) error {
	job, err := s.ownedJob(ctx, ownerID, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobOpen {
		return apperr.ErrJobNotOpen
	}
	if len(job.Accepted) > 0 {
		return ErrRosterNotEmpty
	}
	err = s.retry.Once(ctx, func(ctx context.Context) error {
		return s.jobs.Transition(ctx, jobID, models.JobOpen, models.JobCancelled)
	})
	if errors.Is(err, store.ErrStatus) {
		return apperr.ErrJobNotOpen
	}
	return store.Outcome(err, "job")
}

// AppendFreelancer adds userID to the roster. It reports false without error
// when the user is already on it, so repeating a call never grows the roster.
func (s *Service) AppendFreelancer(ctx context.Context, jobID, userID string) (bool, error) {
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.jobs.AppendAccepted(ctx, jobID, userID)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrAlreadyMember):
		return false, nil
	case errors.Is(err, store.ErrSlotFull):
		return false, apperr.ErrSlotFull
	case errors.Is(err, store.ErrStatus):
		return false, apperr.ErrJobNotOpen
	default:
		return false, store.Outcome(err, "job")
	}
}

func (s *Service) GetAcceptedFreelancers(ctx context.Context, jobID string) ([]string, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job.Accepted, nil
}

// GetActiveJobsByFreelancer lists jobs userID is on that have not finished.
func (s *Service) GetActiveJobsByFreelancer(ctx context.Context, userID string) ([]models.Job, error) {
	return s.byMember(ctx, userID, models.JobOpen, models.JobOngoing)
}

func (s *Service) GetFreelancerHistory(ctx context.Context, userID string) ([]models.Job, error) {
	return s.byMember(ctx, userID, models.JobFinished)
}

func (s *Service) byMember(ctx context.Context, userID string, statuses ...models.JobStatus) ([]models.Job, error) {
	out, err := retry.Get(ctx, s.retry, func(ctx context.Context) ([]models.Job, error) {
		return s.jobs.ListByMember(ctx, userID, statuses...)
	})
	return out, store.Outcome(err, "jobs")
}

func (s *Service) ListJobsByOwner(ctx context.Context, ownerID string) ([]models.Job, error) {
	out, err := retry.Get(ctx, s.retry, func(ctx context.Context) ([]models.Job, error) {
		return s.jobs.ListByOwner(ctx, ownerID)
	})
	return out, store.Outcome(err, "jobs")
}

func (s *Service) ListOpenJobs(ctx context.Context, limit int) ([]models.Job, error) {
	out, err := retry.Get(ctx, s.retry, func(ctx context.Context) ([]models.Job, error) {
		return s.jobs.ListOpen(ctx, limit)
	})
	return out, store.Outcome(err, "jobs")
}

func (s *Service) ListSimilar(ctx context.Context, job models.Job, limit int) ([]models.Job, error) {
	if len(job.Tags) == 0 {
		return []models.Job{}, nil
	}
	out, err := retry.Get(ctx, s.retry, func(ctx context.Context) ([]models.Job, error) {
		return s.jobs.ListSimilar(ctx, job.JobID, job.Tags, limit)
	})
	return out, store.Outcome(err, "jobs")
}

func sideEffectFailed(step, jobID, userID string, err error) string {
	metrics.SideEffectFailed(step)
	log.Warn().Err(err).Str("job", jobID).Str("user", userID).Str("step", step).Msg("side effect failed")
	return fmt.Sprintf("%s: %s", userID, apperr.Message(err))
}
