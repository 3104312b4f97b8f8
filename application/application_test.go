package application

import (
	"context"
	"errors"
	"slices"
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

func newService(t *testing.T, slots int) (*Service, *memstore.Store) {
	t.Helper()
	ms := memstore.New()
	ms.Put(models.Job{JobID: "J", OwnerID: "owner", Name: "logo", Salary: 50, Slots: slots, Status: models.JobOpen})
	pol := retry.Policy{Attempts: 1}
	roster := engagement.New(ms.Jobs(), ledger.NewMemory(), chat.NewMemory(), rating.New(ms.Ratings(), pol), pol)
	return New(ms.Jobs(), ms.Applicants(), guard.New(ms.Jobs(), pol), roster, pol), ms
}

func roster(t *testing.T, ms *memstore.Store) []string {
	t.Helper()
	j, err := ms.Jobs().Get(context.Background(), "J")
	if err != nil {
		t.Fatal(err)
	}
	return j.Accepted
}

// Two applicants for a single slot: the second accept loses.
func TestAcceptSecondApplicantSlotFull(t *testing.T) {
	svc, ms := newService(t, 1)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "F1", "J", "hi"); err != nil {
		t.Fatal(err)
	}
	if added, err := svc.AcceptApplier(ctx, "owner", "J", "F1"); err != nil || !added {
		t.Fatalf("expected F1 added, got %v %v", added, err)
	}
	if _, err := svc.Apply(ctx, "F2", "J", ""); err != nil {
		t.Fatalf("applying to a full job should still be allowed: %v", err)
	}
	_, err := svc.AcceptApplier(ctx, "owner", "J", "F2")
	if !apperr.Is(err, apperr.CodeConflict) || apperr.Message(err) != "slot full" {
		t.Fatalf("expected slot full, got %v", err)
	}
	if got := roster(t, ms); !slices.Equal(got, []string{"F1"}) {
		t.Fatalf("roster changed: %v", got)
	}
	if ok, _ := svc.HasApplied(ctx, "F1", "J"); ok {
		t.Fatal("accepted applicant should leave the applicant list")
	}
	if ok, _ := svc.HasApplied(ctx, "F2", "J"); !ok {
		t.Fatal("losing applicant should stay listed")
	}
}

func TestApplyRules(t *testing.T) {
	svc, ms := newService(t, 2)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "owner", "J", ""); !errors.Is(err, ErrOwnJob) {
		t.Fatalf("expected own job error, got %v", err)
	}
	if _, err := svc.Apply(ctx, "F1", "J", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Apply(ctx, "F1", "J", ""); !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("expected already applied, got %v", err)
	}
	if _, err := svc.AcceptApplier(ctx, "owner", "J", "F1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Apply(ctx, "F1", "J", ""); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected already registered, got %v", err)
	}
	if _, err := svc.Apply(ctx, "F1", "missing", ""); !apperr.Is(err, apperr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	ms.Put(models.Job{JobID: "J", OwnerID: "owner", Slots: 2, Status: models.JobOngoing})
	if _, err := svc.Apply(ctx, "F3", "J", ""); !errors.Is(err, apperr.ErrJobNotOpen) {
		t.Fatalf("expected job not open, got %v", err)
	}
}

func TestAcceptRequiresOwnerAndApplication(t *testing.T) {
	svc, _ := newService(t, 2)
	ctx := context.Background()

	if _, err := svc.AcceptApplier(ctx, "owner", "J", "F1"); !errors.Is(err, ErrNoApplication) {
		t.Fatalf("expected no application, got %v", err)
	}
	if _, err := svc.Apply(ctx, "F1", "J", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AcceptApplier(ctx, "F2", "J", "F1"); !errors.Is(err, apperr.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
}

func TestRejectAndWithdraw(t *testing.T) {
	svc, _ := newService(t, 2)
	ctx := context.Background()

	for _, u := range []string{"F1", "F2"} {
		if _, err := svc.Apply(ctx, u, "J", ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := svc.RejectApplier(ctx, "owner", "J", "F1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RejectApplier(ctx, "owner", "J", "F1"); !errors.Is(err, ErrNoApplication) {
		t.Fatalf("expected no application on second reject, got %v", err)
	}
	if err := svc.Withdraw(ctx, "F2", "J"); err != nil {
		t.Fatal(err)
	}
	list, err := svc.ListApplicants(ctx, "J")
	if err != nil || len(list) != 0 {
		t.Fatalf("expected no applicants, got %v %v", list, err)
	}
	if _, err := svc.Apply(ctx, "F2", "J", "again"); err != nil {
		t.Fatalf("withdrawn applicant should be able to reapply: %v", err)
	}
	mine, _ := svc.ListApplicationsByUser(ctx, "F2")
	if len(mine) != 1 || mine[0].Pitch != "again" {
		t.Fatalf("unexpected applications %+v", mine)
	}
}
