// Package invitation lets owners invite freelancers to a job. There is at most
// one invitation per (job, invitee); answering it is final.
package invitation

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"gigflow/apperr"
	"gigflow/guard"
	"gigflow/models"
	"gigflow/retry"
	"gigflow/store"
)

const (
	ReasonJobFull    = "Accepted but job full"
	ReasonJobStarted = "Accepted but job no longer open"
)

var (
	ErrExists         = apperr.New(apperr.CodePrecondition, "Invitation already exists")
	ErrNotInvitee     = apperr.New(apperr.CodeForbidden, "not your invitation")
	ErrAnswered       = apperr.New(apperr.CodePrecondition, "invitation already answered")
	ErrNotFound       = apperr.New(apperr.CodeNotFound, "invitation not found")
	ErrAlreadyOnJob   = apperr.New(apperr.CodePrecondition, "already registered")
	ErrInviteYourself = apperr.New(apperr.CodeInvalid, "cannot invite yourself")
)

type Roster interface {
	AppendFreelancer(ctx context.Context, jobID, userID string) (bool, error)
}

// Acceptance is the outcome of accepting an invitation. The invitation can be
// accepted while joining the job fails; Joined tells the two apart.
type Acceptance struct {
	Invitation models.Invitation `json:"invitation"`
	Joined     bool              `json:"joined"`
	Reason     string            `json:"reason,omitempty"`
	// Repeated is set when the invitation had already been accepted and only
	// the roster append was run again.
	Repeated bool `json:"repeated,omitempty"`
}

type Service struct {
	invitations store.InvitationStore
	guard       *guard.Guard
	roster      Roster
	retry       retry.Policy
}

func New(invitations store.InvitationStore, g *guard.Guard, roster Roster, pol retry.Policy) *Service {
	return &Service{invitations: invitations, guard: g, roster: roster, retry: pol}
}

func (s *Service) Create(ctx context.Context, ownerID, jobID, inviteeID string) (models.Invitation, error) {
	if inviteeID == "" {
		return models.Invitation{}, apperr.New(apperr.CodeInvalid, "invitee required")
	}
	if inviteeID == ownerID {
		return models.Invitation{}, ErrInviteYourself
	}
	elig, err := s.guard.IsEligible(ctx, jobID, inviteeID)
	if err != nil {
		return models.Invitation{}, err
	}
	switch {
	case elig.Job.OwnerID != ownerID:
		return models.Invitation{}, apperr.ErrNotOwner
	case !elig.Open:
		return models.Invitation{}, apperr.ErrJobNotOpen
	case elig.AlreadyRegistered:
		return models.Invitation{}, ErrAlreadyOnJob
	}

	// any earlier invitation blocks a new one, answered or not
	_, found, err := s.FindByUserAndJob(ctx, inviteeID, jobID)
	if err != nil {
		return models.Invitation{}, err
	}
	if found {
		return models.Invitation{}, ErrExists
	}

	var inv models.Invitation
	err = s.retry.Once(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.invitations.Create(ctx, models.Invitation{JobID: jobID, InviterID: ownerID, InviteeID: inviteeID})
		return err
	})
	if errors.Is(err, store.ErrDuplicate) {
		return models.Invitation{}, ErrExists
	}
	return inv, store.Outcome(err, "invitation")
}

func (s *Service) get(ctx context.Context, userID, invitationID string) (models.Invitation, error) {
	inv, err := retry.Get(ctx, s.retry, func(ctx context.Context) (models.Invitation, error) {
		return s.invitations.Get(ctx, invitationID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return inv, ErrNotFound
	}
	if err != nil {
		return inv, store.Outcome(err, "invitation")
	}
	if inv.InviteeID != userID {
		return inv, ErrNotInvitee
	}
	return inv, nil
}

// Accept marks the invitation accepted and then tries to join the job. A full
// or already started job still leaves the invitation accepted. Accepting an
// accepted invitation again retries the roster append, which is a no-op once
// the user is on the roster.
func (s *Service) Accept(ctx context.Context, userID, invitationID string) (Acceptance, error) {
	inv, err := s.get(ctx, userID, invitationID)
	if err != nil {
		return Acceptance{}, err
	}
	repeated := inv.Status == models.InvitationAccepted
	switch inv.Status {
	case models.InvitationRejected:
		return Acceptance{}, ErrAnswered
	case models.InvitationPending:
		var updated models.Invitation
		err = s.retry.Once(ctx, func(ctx context.Context) error {
			var err error
			updated, err = s.invitations.SetStatus(ctx, invitationID, models.InvitationPending, models.InvitationAccepted)
			return err
		})
		if err != nil {
			// the write may have landed, or a parallel accept won
			current, gerr := s.get(ctx, userID, invitationID)
			if gerr != nil || current.Status != models.InvitationAccepted {
				if errors.Is(err, store.ErrStatus) {
					return Acceptance{}, ErrAnswered
				}
				return Acceptance{}, store.Outcome(err, "invitation")
			}
			updated = current
			repeated = errors.Is(err, store.ErrStatus)
		}
		inv = updated
	}

	acc := Acceptance{Invitation: inv, Repeated: repeated}
	_, err = s.roster.AppendFreelancer(ctx, inv.JobID, userID)
	switch {
	case err == nil:
		acc.Joined = true
	case apperr.Is(err, apperr.CodeConflict):
		acc.Reason = ReasonJobFull
	case errors.Is(err, apperr.ErrJobNotOpen):
		acc.Reason = ReasonJobStarted
	default:
		log.Warn().Err(err).Str("job", inv.JobID).Str("user", userID).Msg("invitation accepted but roster append failed")
		return acc, apperr.Wrap(apperr.CodePartial, "invitation accepted but joining the job failed", err)
	}
	return acc, nil
}

// Reject is final. Rejecting an already rejected invitation succeeds.
func (s *Service) Reject(ctx context.Context, userID, invitationID string) (models.Invitation, error) {
	inv, err := s.get(ctx, userID, invitationID)
	if err != nil {
		return inv, err
	}
	if inv.Status == models.InvitationRejected {
		return inv, nil
	}
	err = s.retry.Once(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.invitations.SetStatus(ctx, invitationID, models.InvitationPending, models.InvitationRejected)
		return err
	})
	if errors.Is(err, store.ErrStatus) {
		return inv, ErrAnswered
	}
	return inv, store.Outcome(err, "invitation")
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Invitation, error) {
	out, err := retry.Get(ctx, s.retry, func(ctx context.Context) ([]models.Invitation, error) {
		return s.invitations.ListByInvitee(ctx, userID)
	})
	return out, store.Outcome(err, "invitations")
}

func (s *Service) ListForJob(ctx context.Context, jobID string) ([]models.Invitation, error) {
	out, err := retry.Get(ctx, s.retry, func(ctx context.Context) ([]models.Invitation, error) {
		return s.invitations.ListByJob(ctx, jobID)
	})
	return out, store.Outcome(err, "invitations")
}

// FindByUserAndJob reports the invitation for the pair, if any.
func (s *Service) FindByUserAndJob(ctx context.Context, userID, jobID string) (models.Invitation, bool, error) {
	inv, err := retry.Get(ctx, s.retry, func(ctx context.Context) (models.Invitation, error) {
		return s.invitations.FindByUserAndJob(ctx, userID, jobID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return models.Invitation{}, false, nil
	}
	if err != nil {
		return inv, false, store.Outcome(err, "invitation")
	}
	return inv, true, nil
}
