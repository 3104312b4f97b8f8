// Package rating writes the one rating each freelancer receives when a job
// finishes.
package rating

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"gigflow/apperr"
	"gigflow/models"
	"gigflow/retry"
	"gigflow/store"
)

const (
	MinScore     = 1
	MaxScore     = 5
	DefaultScore = 3
)

// Score is the owner's verdict for one freelancer.
type Score struct {
	Value   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

type Report struct {
	Created      []string `json:"created"`
	AlreadyRated []string `json:"alreadyRated"`
	Failed       []string `json:"failed"`
}

type Service struct {
	ratings store.RatingStore
	retry   retry.Policy
}

func New(ratings store.RatingStore, pol retry.Policy) *Service {
	return &Service{ratings: ratings, retry: pol}
}

// Validate rejects scores out of range or for users not on the roster.
func Validate(members []string, scores map[string]Score) error {
	for user, sc := range scores {
		if !containsUser(members, user) {
			return apperr.New(apperr.CodeInvalid, fmt.Sprintf("%s is not on the roster", user))
		}
		if sc.Value < MinScore || sc.Value > MaxScore {
			return apperr.New(apperr.CodeInvalid, fmt.Sprintf("score for %s must be %d-%d", user, MinScore, MaxScore))
		}
	}
	return nil
}

func containsUser(members []string, user string) bool {
	for _, m := range members {
		if m == user {
			return true
		}
	}
	return false
}

// Finalize writes one rating per member. The store's (job, user) key makes a
// repeated call report AlreadyRated instead of writing a second row.
func (s *Service) Finalize(ctx context.Context, raterID, jobID string, members []string, scores map[string]Score) Report {
	rep := Report{Created: []string{}, AlreadyRated: []string{}, Failed: []string{}}
	for _, user := range members {
		sc, ok := scores[user]
		if !ok {
			sc = Score{Value: DefaultScore}
		}
		r := models.Rating{JobID: jobID, UserID: user, RaterID: raterID, Score: sc.Value, Comment: sc.Comment}
		err := s.retry.Do(ctx, func(ctx context.Context) error {
			_, err := s.ratings.CreateOnce(ctx, r)
			return err
		})
		switch {
		case err == nil:
			rep.Created = append(rep.Created, user)
		case errors.Is(err, store.ErrDuplicate):
			rep.AlreadyRated = append(rep.AlreadyRated, user)
		default:
			log.Warn().Err(err).Str("job", jobID).Str("user", user).Msg("rating not created")
			rep.Failed = append(rep.Failed, user)
		}
	}
	return rep
}

func (s *Service) ListByJob(ctx context.Context, jobID string) ([]models.Rating, error) {
	out, err := retry.Get(ctx, s.retry, func(ctx context.Context) ([]models.Rating, error) {
		return s.ratings.ListByJob(ctx, jobID)
	})
	return out, store.Outcome(err, "ratings")
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.Rating, error) {
	out, err := retry.Get(ctx, s.retry, func(ctx context.Context) ([]models.Rating, error) {
		return s.ratings.ListByUser(ctx, userID)
	})
	return out, store.Outcome(err, "ratings")
}

// Average returns the mean score of userID and how many ratings it covers.
func (s *Service) Average(ctx context.Context, userID string) (float64, int, error) {
	rs, err := s.ListByUser(ctx, userID)
	if err != nil || len(rs) == 0 {
		return 0, 0, err
	}
	total := 0
	for _, r := range rs {
		total += r.Score
	}
	return float64(total) / float64(len(rs)), len(rs), nil
}
