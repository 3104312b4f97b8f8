// Package guard answers whether a freelancer can still join a job.
package guard

import (
	"context"

	"gigflow/models"
	"gigflow/retry"
	"gigflow/store"
)

type Eligibility struct {
	Job               models.Job
	AlreadyRegistered bool
	Open              bool
	SlotsLeft         int
}

type Guard struct {
	jobs  store.JobStore
	retry retry.Policy
}

func New(jobs store.JobStore, pol retry.Policy) *Guard {
	return &Guard{jobs: jobs, retry: pol}
}

// IsEligible reads the job's roster. A failed read is returned as an error,
// never as "not registered".
func (g *Guard) IsEligible(ctx context.Context, jobID, freelancerID string) (Eligibility, error) {
	job, err := retry.Get(ctx, g.retry, func(ctx context.Context) (models.Job, error) {
		return g.jobs.Get(ctx, jobID)
	})
	if err != nil {
		return Eligibility{}, store.Outcome(err, "job")
	}
	return Eligibility{
		Job:               job,
		AlreadyRegistered: job.IsMember(freelancerID),
		Open:              job.Status == models.JobOpen,
		SlotsLeft:         job.SlotsLeft(),
	}, nil
}
