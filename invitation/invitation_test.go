package invitation

import (
	"context"
	"errors"
	"testing"

	"gigflow/apperr"
	"gigflow/chat"
	"gigflow/engagement"
	"gigflow/guard"
	"gigflow/ledger"
	"gigflow/models"
	"gigflow/rating"
	"gigflow/retry"
	"gigflow/store/memstore"
)

func newService(t *testing.T, slots int, roster ...string) (*Service, *memstore.Store) {
	t.Helper()
	ms := memstore.New()
	ms.Put(models.Job{JobID: "J", OwnerID: "owner", Name: "site", Salary: 80, Slots: slots, Status: models.JobOpen, Accepted: roster})
	pol := retry.Policy{Attempts: 1}
	eng := engagement.New(ms.Jobs(), ledger.NewMemory(), chat.NewMemory(), rating.New(ms.Ratings(), pol), pol)
	return New(ms.Invitations(), guard.New(ms.Jobs(), pol), eng, pol), ms
}

func TestInviteTwiceKeepsOneRow(t *testing.T) {
	svc, _ := newService(t, 2)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "owner", "J", "F1"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Create(ctx, "owner", "J", "F1")
	if !errors.Is(err, ErrExists) || apperr.Message(err) != "Invitation already exists" {
		t.Fatalf("expected invitation exists, got %v", err)
	}
	list, err := svc.ListForJob(ctx, "J")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected exactly one invitation, got %d %v", len(list), err)
	}
}

func TestCreateRules(t *testing.T) {
	svc, _ := newService(t, 2, "F9")
	ctx := context.Background()

	cases := []struct {
		name    string
		owner   string
		invitee string
		want    error
	}{
		{"self", "owner", "owner", ErrInviteYourself},
		{"stranger", "F2", "F1", apperr.ErrNotOwner},
		{"member", "owner", "F9", ErrAlreadyOnJob},
	}
	for _, c := range cases {
		if _, err := svc.Create(ctx, c.owner, "J", c.invitee); !errors.Is(err, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, err)
		}
	}
	if _, err := svc.Create(ctx, "owner", "J", ""); !apperr.Is(err, apperr.CodeInvalid) {
		t.Errorf("empty invitee: expected invalid, got %v", err)
	}
}

func TestAcceptJoinsRoster(t *testing.T) {
	svc, ms := newService(t, 2)
	ctx := context.Background()

	inv, err := svc.Create(ctx, "owner", "J", "F1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Accept(ctx, "F2", inv.InvitationID); !errors.Is(err, ErrNotInvitee) {
		t.Fatalf("expected not invitee, got %v", err)
	}
	acc, err := svc.Accept(ctx, "F1", inv.InvitationID)
	if err != nil || !acc.Joined || acc.Invitation.Status != models.InvitationAccepted {
		t.Fatalf("unexpected acceptance %+v %v", acc, err)
	}
	job, _ := ms.Jobs().Get(ctx, "J")
	if !job.IsMember("F1") {
		t.Fatal("F1 should be on the roster")
	}
	again, err := svc.Accept(ctx, "F1", inv.InvitationID)
	if err != nil || !again.Joined || !again.Repeated {
		t.Fatalf("second accept: %+v %v", again, err)
	}
	if job, _ := ms.Jobs().Get(ctx, "J"); len(job.Accepted) != 1 {
		t.Fatalf("roster grew on a repeated accept: %v", job.Accepted)
	}
}

// flakyRoster fails the first append and delegates afterwards.
type flakyRoster struct {
	Roster
	failures int
}

func (f *flakyRoster) AppendFreelancer(ctx context.Context, jobID, userID string) (bool, error) {
	if f.failures > 0 {
		f.failures--
		return false, apperr.New(apperr.CodeTransient, "connection reset")
	}
	return f.Roster.AppendFreelancer(ctx, jobID, userID)
}

func TestAcceptAgainAfterFailedJoin(t *testing.T) {
	ms := memstore.New()
	ms.Put(models.Job{JobID: "J", OwnerID: "owner", Name: "site", Salary: 80, Slots: 2, Status: models.JobOpen})
	pol := retry.Policy{Attempts: 1}
	eng := engagement.New(ms.Jobs(), ledger.NewMemory(), chat.NewMemory(), rating.New(ms.Ratings(), pol), pol)
	svc := New(ms.Invitations(), guard.New(ms.Jobs(), pol), &flakyRoster{Roster: eng, failures: 1}, pol)
	ctx := context.Background()

	inv, err := svc.Create(ctx, "owner", "J", "F1")
	if err != nil {
		t.Fatal(err)
	}
	acc, err := svc.Accept(ctx, "F1", inv.InvitationID)
	if !apperr.Is(err, apperr.CodePartial) || acc.Joined || acc.Invitation.Status != models.InvitationAccepted {
		t.Fatalf("first accept: %+v %v", acc, err)
	}

	acc, err = svc.Accept(ctx, "F1", inv.InvitationID)
	if err != nil || !acc.Joined || !acc.Repeated {
		t.Fatalf("retried accept: %+v %v", acc, err)
	}
	job, _ := ms.Jobs().Get(ctx, "J")
	if len(job.Accepted) != 1 || !job.IsMember("F1") {
		t.Fatalf("roster %v, want [F1]", job.Accepted)
	}
}

func TestAcceptOnFullJobStaysAccepted(t *testing.T) {
	svc, ms := newService(t, 1)
	ctx := context.Background()

	inv, err := svc.Create(ctx, "owner", "J", "F2")
	if err != nil {
		t.Fatal(err)
	}
	ms.Put(models.Job{JobID: "J", OwnerID: "owner", Slots: 1, Status: models.JobOpen, Accepted: []string{"F1"}})

	acc, err := svc.Accept(ctx, "F2", inv.InvitationID)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Joined || acc.Reason != ReasonJobFull {
		t.Fatalf("expected accepted but full, got %+v", acc)
	}
	stored, found, err := svc.FindByUserAndJob(ctx, "F2", "J")
	if err != nil || !found || stored.Status != models.InvitationAccepted {
		t.Fatalf("invitation should be accepted, got %+v %v %v", stored, found, err)
	}
}

func TestRejectIsFinal(t *testing.T) {
	svc, _ := newService(t, 2)
	ctx := context.Background()

	inv, err := svc.Create(ctx, "owner", "J", "F1")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		got, err := svc.Reject(ctx, "F1", inv.InvitationID)
		if err != nil || got.Status != models.InvitationRejected {
			t.Fatalf("reject %d: %+v %v", i, got, err)
		}
	}
	if _, err := svc.Accept(ctx, "F1", inv.InvitationID); !errors.Is(err, ErrAnswered) {
		t.Fatalf("expected answered, got %v", err)
	}
	if _, err := svc.Create(ctx, "owner", "J", "F1"); !errors.Is(err, ErrExists) {
		t.Fatalf("rejected invitation should block a new one, got %v", err)
	}
	mine, _ := svc.ListForUser(ctx, "F1")
	if len(mine) != 1 {
		t.Fatalf("expected one invitation for F1, got %d", len(mine))
	}
	if _, found, _ := svc.FindByUserAndJob(ctx, "F2", "J"); found {
		t.Fatal("F2 was never invited")
	}
}

func TestRejectAfterAcceptFails(t *testing.T) {
	svc, _ := newService(t, 2)
	ctx := context.Background()

	inv, _ := svc.Create(ctx, "owner", "J", "F1")
	if _, err := svc.Accept(ctx, "F1", inv.InvitationID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Reject(ctx, "F1", inv.InvitationID); !errors.Is(err, ErrAnswered) {
		t.Fatalf("expected answered, got %v", err)
	}
}
