// Package orchestrator composes the engagement subsystems into one job view
// per viewer and the guarded action surface presentation calls.
package orchestrator

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"gigflow/apperr"
	"gigflow/application"
	"gigflow/engagement"
	"gigflow/identity"
	"gigflow/invitation"
	"gigflow/models"
	"gigflow/mq"
	"gigflow/notify"
	"gigflow/rating"
	"gigflow/submission"
)

const similarLimit = 3

// JobDetail is everything a viewer sees on a job page. Fields the viewer is
// not entitled to stay empty.
type JobDetail struct {
	Job         models.Job          `json:"job"`
	Applicants  []models.Applicant  `json:"applicants"`
	Roster      []string            `json:"roster"`
	IsOwner     bool                `json:"isOwner"`
	IsMember    bool                `json:"isMember"`
	HasApplied  bool                `json:"hasApplied"`
	Invitation  *models.Invitation  `json:"invitation,omitempty"`
	Invitations []models.Invitation `json:"invitations,omitempty"`
	Similar     []models.Job        `json:"similar"`
	Submissions []models.Submission `json:"submissions,omitempty"`
	Ratings     []models.Rating     `json:"ratings,omitempty"`
}

type Deps struct {
	Engagement   *engagement.Service
	Applications *application.Service
	Invitations  *invitation.Service
	Submissions  *submission.Service
	Ratings      *rating.Service
	Notifier     notify.Notifier
	Events       mq.Publisher
}

type Orchestrator struct {
	Deps
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{Deps: d}
}

// Snapshot reads the job first and then fans out the remaining reads. The
// viewer is optional; anonymous viewers get the public parts only.
func (o *Orchestrator) Snapshot(ctx context.Context, jobID string) (JobDetail, error) {
	job, err := o.Engagement.GetJob(ctx, jobID)
	if err != nil {
		return JobDetail{}, err
	}
	viewer, signedIn := identity.UserID(ctx)
	d := JobDetail{
		Job:      job,
		Roster:   job.Accepted,
		IsOwner:  signedIn && viewer == job.OwnerID,
		IsMember: signedIn && job.IsMember(viewer),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		all, err := o.Applications.ListApplicants(gctx, jobID)
		if err != nil {
			return err
		}
		d.Applicants = slices.DeleteFunc(all, func(a models.Applicant) bool { return job.IsMember(a.UserID) })
		return nil
	})
	g.Go(func() error {
		var err error
		d.Similar, err = o.Engagement.ListSimilar(gctx, job, similarLimit)
		return err
	})
	if signedIn && !d.IsOwner {
		g.Go(func() error {
			var err error
			d.HasApplied, err = o.Applications.HasApplied(gctx, viewer, jobID)
			return err
		})
		g.Go(func() error {
			inv, found, err := o.Invitations.FindByUserAndJob(gctx, viewer, jobID)
			if found {
				d.Invitation = &inv
			}
			return err
		})
	}
	if d.IsOwner {
		g.Go(func() error {
			var err error
			d.Invitations, err = o.Invitations.ListForJob(gctx, jobID)
			return err
		})
	}
	if d.IsOwner || d.IsMember {
		g.Go(func() error {
			subs, err := o.Submissions.ListByJob(gctx, jobID)
			if err != nil {
				return err
			}
			if !d.IsOwner {
				subs = slices.DeleteFunc(subs, func(s models.Submission) bool { return s.UserID != viewer })
			}
			d.Submissions = subs
			return nil
		})
	}
	if job.Status == models.JobFinished {
		g.Go(func() error {
			var err error
			d.Ratings, err = o.Ratings.ListByJob(gctx, jobID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return JobDetail{}, err
	}
	return d, nil
}

// Dashboard is the signed-in user's own view across jobs.
type Dashboard struct {
	Posted       []models.Job        `json:"posted"`
	Active       []models.Job        `json:"active"`
	History      []models.Job        `json:"history"`
	Applications []models.Applicant  `json:"applications"`
	Invitations  []models.Invitation `json:"invitations"`
	Submissions  []models.Submission `json:"submissions"`
}

func (o *Orchestrator) Dashboard(ctx context.Context) (Dashboard, error) {
	userID, err := identity.Require(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Posted, err = o.Engagement.ListJobsByOwner(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		d.Active, err = o.Engagement.GetActiveJobsByFreelancer(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		d.History, err = o.Engagement.GetFreelancerHistory(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		d.Applications, err = o.Applications.ListApplicationsByUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		d.Invitations, err = o.Invitations.ListForUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		d.Submissions, err = o.Submissions.ListByUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func (o *Orchestrator) OpenJobs(ctx context.Context, limit int) ([]models.Job, error) {
	return o.Engagement.ListOpenJobs(ctx, limit)
}

// JobSubmissions is the owner's review listing, optionally by status.
func (o *Orchestrator) JobSubmissions(ctx context.Context, jobID string, status models.SubmissionStatus) ([]models.Submission, error) {
	userID, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	job, err := o.Engagement.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != userID {
		return nil, apperr.ErrNotOwner
	}
	switch status {
	case models.SubmissionWaiting:
		return o.Submissions.ListWaitingByJob(ctx, jobID)
	case models.SubmissionAccepted:
		return o.Submissions.ListAcceptedByJob(ctx, jobID)
	case models.SubmissionRejected:
		return o.Submissions.ListRejectedByJob(ctx, jobID)
	default:
		return o.Submissions.ListByJob(ctx, jobID)
	}
}
