// Package memstore keeps the job store in process memory. It backs the test
// suite and STORE=memory development runs.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"gigflow/models"
	"gigflow/store"
)

// Store implements every store interface over maps guarded by one mutex, so
// each method is atomic the way a single-document Mongo write is.
type Store struct {
	mu          sync.Mutex
	seq         int
	jobs        map[string]models.Job
	applicants  []models.Applicant
	invitations map[string]models.Invitation
	submissions map[string]models.Submission
	ratings     []models.Rating
}

func New() *Store {
	return &Store{
		jobs:        make(map[string]models.Job),
		invitations: make(map[string]models.Invitation),
		submissions: make(map[string]models.Submission),
	}
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func cloneJob(j models.Job) models.Job {
	j.Accepted = slices.Clone(j.Accepted)
	j.Tags = slices.Clone(j.Tags)
	return j
}

func newestJobsFirst(jobs []models.Job) {
	sort.SliceStable(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })
}

// Jobs

type jobs struct{ *Store }

func (s *Store) Jobs() store.JobStore { return jobs{s} }

func (s jobs) Create(_ context.Context, job models.Job) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	job.JobID = s.nextID("job")
	job.Status = models.JobOpen
	job.Accepted = []string{}
	if job.Tags == nil {
		job.Tags = []string{}
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.JobID] = cloneJob(job)
	return job, nil
}

// Put stores job as-is, for seeding fixtures.
func (s *Store) Put(job models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.Accepted == nil {
		job.Accepted = []string{}
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	s.jobs[job.JobID] = cloneJob(job)
}

func (s jobs) Get(_ context.Context, jobID string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, store.ErrNotFound
	}
	return cloneJob(job), nil
}

func (s jobs) filter(keep func(models.Job) bool, limit int) []models.Job {
	out := []models.Job{}
	for _, j := range s.jobs {
		if keep(j) {
			out = append(out, cloneJob(j))
		}
	}
	newestJobsFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s jobs) ListOpen(_ context.Context, limit int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(j models.Job) bool { return j.Status == models.JobOpen }, limit), nil
}

func (s jobs) ListByOwner(_ context.Context, ownerID string) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(j models.Job) bool { return j.OwnerID == ownerID }, 0), nil
}

func (s jobs) ListByMember(_ context.Context, userID string, statuses ...models.JobStatus) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(j models.Job) bool {
		return j.IsMember(userID) && (len(statuses) == 0 || slices.Contains(statuses, j.Status))
	}, 0), nil
}

func (s jobs) ListSimilar(_ context.Context, jobID string, tags []string, limit int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := models.Job{Tags: tags}
	return s.filter(func(j models.Job) bool {
		return j.JobID != jobID && ref.SharesTag(j)
	}, limit), nil
}

func (s jobs) AppendAccepted(_ context.Context, jobID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	switch {
	case !ok:
		return store.ErrNotFound
	case job.IsMember(userID):
		return store.ErrAlreadyMember
	case job.Status != models.JobOpen:
		return store.ErrStatus
	case len(job.Accepted) >= job.Slots:
		return store.ErrSlotFull
	}
	job.Accepted = append(slices.Clone(job.Accepted), userID)
	job.UpdatedAt = time.Now()
	s.jobs[jobID] = job
	return nil
}

func (s jobs) Start(_ context.Context, jobID string, rosterSize int, escrowTxn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if job.Status != models.JobOpen || len(job.Accepted) != rosterSize {
		return store.ErrStatus
	}
	now := time.Now()
	job.Status = models.JobOngoing
	job.EscrowTxn = escrowTxn
	job.StartedAt = &now
	job.UpdatedAt = now
	s.jobs[jobID] = job
	return nil
}

func (s jobs) Transition(_ context.Context, jobID string, from, to models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if job.Status != from {
		return store.ErrStatus
	}
	now := time.Now()
	job.Status = to
	job.UpdatedAt = now
	if to == models.JobFinished {
		job.FinishedAt = &now
	}
	s.jobs[jobID] = job
	return nil
}
