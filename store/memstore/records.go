package memstore

import (
	"context"
	"sort"
	"time"

	"gigflow/models"
	"gigflow/store"
)

// Applicants

type applicants struct{ *Store }

func (s *Store) Applicants() store.ApplicantStore { return applicants{s} }

func (s applicants) Add(_ context.Context, a models.Applicant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.applicants {
		if x.JobID == a.JobID && x.UserID == a.UserID {
			return store.ErrDuplicate
		}
	}
	if a.AppliedAt.IsZero() {
		a.AppliedAt = time.Now()
	}
	s.applicants = append(s.applicants, a)
	return nil
}

func (s applicants) Exists(_ context.Context, jobID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.applicants {
		if x.JobID == jobID && x.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s applicants) ListByJob(_ context.Context, jobID string) ([]models.Applicant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Applicant{}
	for _, x := range s.applicants {
		if x.JobID == jobID {
			out = append(out, x)
		}
	}
	return out, nil
}

func (s applicants) ListByUser(_ context.Context, userID string) ([]models.Applicant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Applicant{}
	for i := len(s.applicants) - 1; i >= 0; i-- {
		if s.applicants[i].UserID == userID {
			out = append(out, s.applicants[i])
		}
	}
	return out, nil
}

func (s applicants) Remove(_ context.Context, jobID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.applicants {
		if x.JobID == jobID && x.UserID == userID {
			s.applicants = append(s.applicants[:i], s.applicants[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// Invitations

type invitations struct{ *Store }

func (s *Store) Invitations() store.InvitationStore { return invitations{s} }

func (s invitations) Create(_ context.Context, inv models.Invitation) (models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.invitations {
		if x.JobID == inv.JobID && x.InviteeID == inv.InviteeID {
			return models.Invitation{}, store.ErrDuplicate
		}
	}
	inv.InvitationID = s.nextID("inv")
	inv.Status = models.InvitationPending
	inv.CreatedAt = time.Now()
	s.invitations[inv.InvitationID] = inv
	return inv, nil
}

func (s invitations) Get(_ context.Context, invitationID string) (models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return models.Invitation{}, store.ErrNotFound
	}
	return inv, nil
}

func (s invitations) FindByUserAndJob(_ context.Context, userID, jobID string) (models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.invitations {
		if x.InviteeID == userID && x.JobID == jobID {
			return x, nil
		}
	}
	return models.Invitation{}, store.ErrNotFound
}

func (s invitations) list(keep func(models.Invitation) bool) []models.Invitation {
	out := []models.Invitation{}
	for _, x := range s.invitations {
		if keep(x) {
			out = append(out, x)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func (s invitations) ListByInvitee(_ context.Context, userID string) ([]models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(x models.Invitation) bool { return x.InviteeID == userID }), nil
}

func (s invitations) ListByJob(_ context.Context, jobID string) ([]models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(x models.Invitation) bool { return x.JobID == jobID }), nil
}

func (s invitations) SetStatus(_ context.Context, invitationID string, from, to models.InvitationStatus) (models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return models.Invitation{}, store.ErrNotFound
	}
	if inv.Status != from {
		return models.Invitation{}, store.ErrStatus
	}
	now := time.Now()
	inv.Status = to
	inv.RespondedAt = &now
	s.invitations[invitationID] = inv
	return inv, nil
}

// Submissions

type submissions struct{ *Store }

func (s *Store) Submissions() store.SubmissionStore { return submissions{s} }

func (s submissions) Create(_ context.Context, sub models.Submission) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.SubmissionID = s.nextID("sub")
	sub.Status = models.SubmissionWaiting
	sub.CreatedAt = time.Now()
	s.submissions[sub.SubmissionID] = sub
	return sub, nil
}

func (s submissions) Get(_ context.Context, submissionID string) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[submissionID]
	if !ok {
		return models.Submission{}, store.ErrNotFound
	}
	return sub, nil
}

func (s submissions) Remove(_ context.Context, submissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submissions, submissionID)
	return nil
}

func (s submissions) List(_ context.Context, f store.SubmissionFilter) ([]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Submission{}
	for _, x := range s.submissions {
		if (f.JobID == "" || x.JobID == f.JobID) &&
			(f.UserID == "" || x.UserID == f.UserID) &&
			(f.Status == "" || x.Status == f.Status) {
			out = append(out, x)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (s submissions) Review(_ context.Context, submissionID string, to models.SubmissionStatus, message string) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[submissionID]
	if !ok {
		return models.Submission{}, store.ErrNotFound
	}
	if sub.Status != models.SubmissionWaiting {
		return models.Submission{}, store.ErrStatus
	}
	now := time.Now()
	sub.Status = to
	sub.ReviewMessage = message
	sub.ReviewedAt = &now
	s.submissions[submissionID] = sub
	return sub, nil
}

// Ratings

type ratings struct{ *Store }

func (s *Store) Ratings() store.RatingStore { return ratings{s} }

func (s ratings) CreateOnce(_ context.Context, r models.Rating) (models.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.ratings {
		if x.JobID == r.JobID && x.UserID == r.UserID {
			return models.Rating{}, store.ErrDuplicate
		}
	}
	r.RatingID = s.nextID("rating")
	r.CreatedAt = time.Now()
	s.ratings = append(s.ratings, r)
	return r, nil
}

func (s ratings) ListByJob(_ context.Context, jobID string) ([]models.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Rating{}
	for _, x := range s.ratings {
		if x.JobID == jobID {
			out = append(out, x)
		}
	}
	return out, nil
}

func (s ratings) ListByUser(_ context.Context, userID string) ([]models.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Rating{}
	for _, x := range s.ratings {
		if x.UserID == userID {
			out = append(out, x)
		}
	}
	return out, nil
}
