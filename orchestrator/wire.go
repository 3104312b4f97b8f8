package orchestrator

import (
	"gigflow/application"
	"gigflow/chat"
	"gigflow/engagement"
	"gigflow/guard"
	"gigflow/invitation"
	"gigflow/ledger"
	"gigflow/mq"
	"gigflow/notify"
	"gigflow/rating"
	"gigflow/retry"
	"gigflow/store"
	"gigflow/store/memstore"
	"gigflow/submission"
)

// Backends are the remote collaborators the subsystems are built on.
type Backends struct {
	Jobs        store.JobStore
	Applicants  store.ApplicantStore
	Invitations store.InvitationStore
	Submissions store.SubmissionStore
	Ratings     store.RatingStore
	Ledger      ledger.Ledger
	Chats       chat.Provisioner
	Notifier    notify.Notifier
	Events      mq.Publisher
}

// MemoryBackends returns backends that live entirely in process.
func MemoryBackends(ms *memstore.Store, led ledger.Ledger, chats chat.Provisioner, n notify.Notifier, events mq.Publisher) Backends {
	return Backends{
		Jobs:        ms.Jobs(),
		Applicants:  ms.Applicants(),
		Invitations: ms.Invitations(),
		Submissions: ms.Submissions(),
		Ratings:     ms.Ratings(),
		Ledger:      led,
		Chats:       chats,
		Notifier:    n,
		Events:      events,
	}
}

// Build wires the subsystems over b, all sharing one retry policy.
func Build(b Backends, pol retry.Policy) *Orchestrator {
	ratings := rating.New(b.Ratings, pol)
	eng := engagement.New(b.Jobs, b.Ledger, b.Chats, ratings, pol)
	g := guard.New(b.Jobs, pol)
	return New(Deps{
		Engagement:   eng,
		Applications: application.New(b.Jobs, b.Applicants, g, eng, pol),
		Invitations:  invitation.New(b.Invitations, g, eng, pol),
		Submissions:  submission.New(b.Jobs, b.Submissions, pol),
		Ratings:      ratings,
		Notifier:     b.Notifier,
		Events:       b.Events,
	})
}
