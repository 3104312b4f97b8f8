// Package application handles freelancers applying to open jobs and owners
// accepting or turning them down.
package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"gigflow/apperr"
	"gigflow/guard"
	"gigflow/models"
	"gigflow/retry"
	"gigflow/store"
)

var (
	ErrAlreadyApplied    = apperr.New(apperr.CodePrecondition, "already applied")
	ErrAlreadyRegistered = apperr.New(apperr.CodePrecondition, "already registered")
	ErrOwnJob            = apperr.New(apperr.CodePrecondition, "owners cannot apply to their own job")
	ErrNoApplication     = apperr.New(apperr.CodeNotFound, "application not found")
)

// Roster appends a freelancer to a job, re-checking capacity at commit.
type Roster interface {
	AppendFreelancer(ctx context.Context, jobID, userID string) (bool, error)
}

type Service struct {
	jobs       store.JobStore
	applicants store.ApplicantStore
	guard      *guard.Guard
	roster     Roster
	retry      retry.Policy
}

func New(jobs store.JobStore, applicants store.ApplicantStore, g *guard.Guard, roster Roster, pol retry.Policy) *Service {
	return &Service{jobs: jobs, applicants: applicants, guard: g, roster: roster, retry: pol}
}

func (s *Service) Apply(ctx context.Context, userID, jobID, pitch string) (models.Applicant, error) {
	elig, err := s.guard.IsEligible(ctx, jobID, userID)
	if err != nil {
		return models.Applicant{}, err
	}
	switch {
	case !elig.Open:
		return models.Applicant{}, apperr.ErrJobNotOpen
	case elig.Job.OwnerID == userID:
		return models.Applicant{}, ErrOwnJob
	case elig.AlreadyRegistered:
		return models.Applicant{}, ErrAlreadyRegistered
	}

	applied, err := s.HasApplied(ctx, userID, jobID)
	if err != nil {
		return models.Applicant{}, err
	}
	if applied {
		return models.Applicant{}, ErrAlreadyApplied
	}

	a := models.Applicant{JobID: jobID, UserID: userID, Pitch: pitch, AppliedAt: time.Now()}
	err = s.retry.Once(ctx, func(ctx context.Context) error { return s.applicants.Add(ctx, a) })
	if errors.Is(err, store.ErrDuplicate) {
		return models.Applicant{}, ErrAlreadyApplied
	}
	if err != nil {
		return models.Applicant{}, store.Outcome(err, "application")
	}
	return a, nil
}

// Withdraw removes the caller's pending application while the job is open.
func (s *Service) Withdraw(ctx context.Context, userID, jobID string) error {
	job, err := s.job(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobOpen {
		return apperr.ErrJobNotOpen
	}
	return s.remove(ctx, jobID, userID)
}

// AcceptApplier moves an applicant onto the roster. Capacity is checked by
// the roster append itself, so a lost race surfaces as "slot full".
func (s *Service) AcceptApplier(ctx context.Context, ownerID, jobID, userID string) (bool, error) {
	job, err := s.ownedJob(ctx, ownerID, jobID)
	if err != nil {
		return false, err
	}
	if job.Status != models.JobOpen {
		return false, apperr.ErrJobNotOpen
	}
	applied, err := s.HasApplied(ctx, userID, jobID)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, ErrNoApplication
	}

	added, err := s.roster.AppendFreelancer(ctx, jobID, userID)
	if err != nil {
		return false, err
	}
	if err := s.remove(ctx, jobID, userID); err != nil && !apperr.Is(err, apperr.CodeNotFound) {
		// the roster is authoritative; a stale applicant row is hidden by the snapshot
		log.Warn().Err(err).Str("job", jobID).Str("user", userID).Msg("applicant cleanup failed")
	}
	return added, nil
}

func (s *Service) RejectApplier(ctx context.Context, ownerID, jobID, userID string) error {
	if _, err := s.ownedJob(ctx, ownerID, jobID); err != nil {
		return err
	}
	return s.remove(ctx, jobID, userID)
}

func (s *Service) ListApplicants(ctx context.Context, jobID string) ([]models.Applicant, error) {
	out, err := retry.Get(ctx, s.retry, func(ctx context.Context) ([]models.Applicant, error) {
		return s.applicants.ListByJob(ctx, jobID)
	})
	return out, store.Outcome(err, "applicants")
}

func (s *Service) ListApplicationsByUser(ctx context.Context, userID string) ([]models.Applicant, error) {
	out, err := retry.Get(ctx, s.retry, func(ctx context.Context) ([]models.Applicant, error) {
		return s.applicants.ListByUser(ctx, userID)
	})
	return out, store.Outcome(err, "applications")
}

func (s *Service) HasApplied(ctx context.Context, userID, jobID string) (bool, error) {
	ok, err := retry.Get(ctx, s.retry, func(ctx context.Context) (bool, error) {
		return s.applicants.Exists(ctx, jobID, userID)
	})
	return ok, store.Outcome(err, "application")
}

func (s *Service) remove(ctx context.Context, jobID, userID string) error {
	err := s.retry.Once(ctx, func(ctx context.Context) error { return s.applicants.Remove(ctx, jobID, userID) })
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoApplication
	}
	return store.Outcome(err, "application")
}

func (s *Service) job(ctx context.Context, jobID string) (models.Job, error) {
	job, err := retry.Get(ctx, s.retry, func(ctx context.Context) (models.Job, error) {
		return s.jobs.Get(ctx, jobID)
	})
	return job, store.Outcome(err, "job")
}

func (s *Service) ownedJob(ctx context.Context, ownerID, jobID string) (models.Job, error) {
	job, err := s.job(ctx, jobID)
	if err != nil {
		return job, err
	}
	if job.OwnerID != ownerID {
		return job, apperr.ErrNotOwner
	}
	return job, nil
}
