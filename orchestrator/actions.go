package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"gigflow/apperr"
	"gigflow/engagement"
	"gigflow/identity"
	"gigflow/invitation"
	"gigflow/metrics"
	"gigflow/models"
	"gigflow/mq"
	"gigflow/notify"
	"gigflow/rating"
)

// Refreshed pairs an action's own result with the job as re-read after it.
// Stale is set when the mutation landed but the re-read failed.
type Refreshed[T any] struct {
	Value T         `json:"value"`
	Job   JobDetail `json:"job"`
	Stale bool      `json:"stale,omitempty"`
}

// change is what a mutation touched: the job to refresh and who to tell.
type change struct {
	jobID string
	notes []models.Notification
}

// run is the shape of every action: identity, mutation, notifications,
// event, refresh. A partial outcome still notifies and refreshes since its
// primary effect landed.
func run[T any](ctx context.Context, o *Orchestrator, action string, mutate func(ctx context.Context, userID string) (T, change, error)) (out Refreshed[T], err error) {
	started := time.Now()
	defer func() { metrics.ObserveAction(action, started, err) }()

	userID, err := identity.Require(ctx)
	if err != nil {
		return out, err
	}
	v, ch, err := mutate(ctx, userID)
	out.Value = v
	if err != nil && !apperr.Is(err, apperr.CodePartial) {
		logFailure(action, userID, ch.jobID, err)
		return out, err
	}
	if err != nil {
		log.Warn().Err(err).Str("action", action).Str("user", userID).Str("job", ch.jobID).Msg("action partially applied")
	}

	for _, n := range ch.notes {
		o.send(ctx, n)
	}
	mq.Emit(ctx, o.Events, mq.EngagementChannel, models.JobEvent{JobID: ch.jobID, Action: action, ActorID: userID, At: time.Now()})

	detail, rerr := o.Snapshot(ctx, ch.jobID)
	if rerr != nil {
		log.Warn().Err(rerr).Str("action", action).Str("job", ch.jobID).Msg("refresh after write failed")
		out.Stale = true
		return out, err
	}
	out.Job = detail
	return out, err
}

func logFailure(action, userID, jobID string, err error) {
	ev := log.Info()
	switch apperr.CodeOf(err) {
	case apperr.CodeTransient, apperr.CodeInternal:
		ev = log.Error()
	}
	ev.Err(err).Str("action", action).Str("user", userID).Str("job", jobID).Msg("action refused")
}

// send delivers a notification without letting delivery affect the action.
func (o *Orchestrator) send(ctx context.Context, n models.Notification) {
	if o.Notifier == nil || n.ReceiverID == "" {
		return
	}
	if err := o.Notifier.Send(ctx, n); err != nil {
		metrics.SideEffectFailed("notify")
		log.Warn().Err(err).Str("to", n.ReceiverID).Str("category", n.Category).Msg("notification not delivered")
	}
}

// lookupJob is best effort; a zero job means the notification is skipped.
func (o *Orchestrator) lookupJob(ctx context.Context, jobID string) models.Job {
	job, err := o.Engagement.GetJob(ctx, jobID)
	if err != nil {
		log.Warn().Err(err).Str("job", jobID).Msg("job lookup for notification failed")
	}
	return job
}

func fanOut(users []string, from, jobID, category, body string) []models.Notification {
	out := make([]models.Notification, 0, len(users))
	for _, u := range users {
		out = append(out, notify.New(u, from, jobID, category, body))
	}
	return out
}

func (o *Orchestrator) PostJob(ctx context.Context, d models.JobDraft) (Refreshed[models.Job], error) {
	return run(ctx, o, "post_job", func(ctx context.Context, userID string) (models.Job, change, error) {
		job, err := o.Engagement.CreateJob(ctx, userID, d)
		return job, change{jobID: job.JobID}, err
	})
}

func (o *Orchestrator) Apply(ctx context.Context, jobID, pitch string) (Refreshed[models.Applicant], error) {
	return run(ctx, o, "apply", func(ctx context.Context, userID string) (models.Applicant, change, error) {
		a, err := o.Applications.Apply(ctx, userID, jobID, pitch)
		ch := change{jobID: jobID}
		if err == nil {
			job := o.lookupJob(ctx, jobID)
			ch.notes = []models.Notification{notify.New(job.OwnerID, userID, jobID, notify.Application,
				fmt.Sprintf("%s applied to %s", userID, job.Name))}
		}
		return a, ch, err
	})
}

func (o *Orchestrator) Withdraw(ctx context.Context, jobID string) (Refreshed[struct{}], error) {
	return run(ctx, o, "withdraw", func(ctx context.Context, userID string) (struct{}, change, error) {
		return struct{}{}, change{jobID: jobID}, o.Applications.Withdraw(ctx, userID, jobID)
	})
}

func (o *Orchestrator) AcceptApplier(ctx context.Context, jobID, applicantID string) (Refreshed[bool], error) {
	return run(ctx, o, "accept_applier", func(ctx context.Context, userID string) (bool, change, error) {
		added, err := o.Applications.AcceptApplier(ctx, userID, jobID, applicantID)
		ch := change{jobID: jobID}
		if err == nil && added {
			ch.notes = []models.Notification{notify.New(applicantID, userID, jobID, notify.ApplicationAccepted,
				"your application was accepted")}
		}
		return added, ch, err
	})
}

func (o *Orchestrator) RejectApplier(ctx context.Context, jobID, applicantID string) (Refreshed[struct{}], error) {
	return run(ctx, o, "reject_applier", func(ctx context.Context, userID string) (struct{}, change, error) {
		err := o.Applications.RejectApplier(ctx, userID, jobID, applicantID)
		ch := change{jobID: jobID}
		if err == nil {
			ch.notes = []models.Notification{notify.New(applicantID, userID, jobID, notify.ApplicationRejected,
				"your application was declined")}
		}
		return struct{}{}, ch, err
	})
}

func (o *Orchestrator) Invite(ctx context.Context, jobID, inviteeID string) (Refreshed[models.Invitation], error) {
	return run(ctx, o, "invite", func(ctx context.Context, userID string) (models.Invitation, change, error) {
		inv, err := o.Invitations.Create(ctx, userID, jobID, inviteeID)
		ch := change{jobID: jobID}
		if err == nil {
			ch.notes = []models.Notification{notify.New(inviteeID, userID, jobID, notify.Invitation,
				"you have been invited to a job")}
		}
		return inv, ch, err
	})
}

func (o *Orchestrator) AcceptInvitation(ctx context.Context, invitationID string) (Refreshed[invitation.Acceptance], error) {
	return run(ctx, o, "accept_invitation", func(ctx context.Context, userID string) (invitation.Acceptance, change, error) {
		acc, err := o.Invitations.Accept(ctx, userID, invitationID)
		inv := acc.Invitation
		ch := change{jobID: inv.JobID}
		if inv.InvitationID != "" && !acc.Repeated {
			body := userID + " accepted your invitation"
			if !acc.Joined && acc.Reason != "" {
				body += " (" + acc.Reason + ")"
			}
			ch.notes = []models.Notification{notify.New(inv.InviterID, userID, inv.JobID, notify.InvitationAccepted, body)}
		}
		return acc, ch, err
	})
}

func (o *Orchestrator) RejectInvitation(ctx context.Context, invitationID string) (Refreshed[models.Invitation], error) {
	return run(ctx, o, "reject_invitation", func(ctx context.Context, userID string) (models.Invitation, change, error) {
		inv, err := o.Invitations.Reject(ctx, userID, invitationID)
		ch := change{jobID: inv.JobID}
		if err == nil {
			ch.notes = []models.Notification{notify.New(inv.InviterID, userID, inv.JobID, notify.InvitationRejected,
				userID+" declined your invitation")}
		}
		return inv, ch, err
	})
}

func (o *Orchestrator) StartJob(ctx context.Context, jobID string) (Refreshed[engagement.StartReport], error) {
	return run(ctx, o, "start_job", func(ctx context.Context, userID string) (engagement.StartReport, change, error) {
		rep, err := o.Engagement.StartJob(ctx, userID, jobID)
		ch := change{jobID: jobID}
		if err == nil {
			ch.notes = fanOut(rep.Members, userID, jobID, notify.JobStarted, "the job has started")
		}
		return rep, ch, err
	})
}

func (o *Orchestrator) FinishJob(ctx context.Context, jobID string, scores map[string]rating.Score) (Refreshed[engagement.FinishReport], error) {
	return run(ctx, o, "finish_job", func(ctx context.Context, userID string) (engagement.FinishReport, change, error) {
		rep, err := o.Engagement.FinishJob(ctx, userID, jobID, scores)
		ch := change{jobID: jobID}
		if err == nil && !rep.Resumed {
			ch.notes = fanOut(rep.Members, userID, jobID, notify.JobFinished, "the job is finished")
		}
		return rep, ch, err
	})
}

func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) (Refreshed[struct{}], error) {
	return run(ctx, o, "cancel_job", func(ctx context.Context, userID string) (struct{}, change, error) {
		err := o.Engagement.CancelJob(ctx, userID, jobID)
		ch := change{jobID: jobID}
		if err == nil {
			applicants, lerr := o.Applications.ListApplicants(ctx, jobID)
			if lerr != nil {
				log.Warn().Err(lerr).Str("job", jobID).Msg("applicants lookup for notification failed")
			}
			for _, a := range applicants {
				ch.notes = append(ch.notes, notify.New(a.UserID, userID, jobID, notify.JobCancelled, "a job you applied to was cancelled"))
			}
		}
		return struct{}{}, ch, err
	})
}

func (o *Orchestrator) Submit(ctx context.Context, jobID, fileRef, message string) (Refreshed[models.Submission], error) {
	return run(ctx, o, "submit", func(ctx context.Context, userID string) (models.Submission, change, error) {
		sub, err := o.Submissions.Create(ctx, userID, jobID, fileRef, message)
		ch := change{jobID: jobID}
		if err == nil {
			job := o.lookupJob(ctx, jobID)
			ch.notes = []models.Notification{notify.New(job.OwnerID, userID, jobID, notify.Submission,
				userID+" submitted work for "+job.Name)}
		}
		return sub, ch, err
	})
}

func (o *Orchestrator) ReviewSubmission(ctx context.Context, submissionID string, status models.SubmissionStatus, message string) (Refreshed[models.Submission], error) {
	return run(ctx, o, "review_submission", func(ctx context.Context, userID string) (models.Submission, change, error) {
		sub, err := o.Submissions.UpdateStatus(ctx, userID, submissionID, status, message)
		ch := change{jobID: sub.JobID}
		if err == nil {
			ch.notes = []models.Notification{notify.New(sub.UserID, userID, sub.JobID, notify.SubmissionReviewed,
				"your submission was "+string(sub.Status))}
		}
		return sub, ch, err
	})
}
