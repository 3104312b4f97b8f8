package receipt

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"gigflow/apperr"
	"gigflow/ledger"
	"gigflow/models"
	"gigflow/orchestrator"
)

func finishedDetail() orchestrator.JobDetail {
	now := time.Now()
	return orchestrator.JobDetail{
		Job: models.Job{JobID: "J", OwnerID: "owner", Name: "logo", Salary: 100, Status: models.JobFinished,
			Accepted: []string{"F1", "F2"}, EscrowTxn: "txn-1", FinishedAt: &now},
		IsOwner: true,
		Ratings: []models.Rating{{JobID: "J", UserID: "F1", Score: 5}},
	}
}

// paidLedger funds the escrow of job J and pays users out of it.
func paidLedger(t *testing.T, users ...string) *ledger.Memory {
	t.Helper()
	led := ledger.NewMemory()
	ctx := context.Background()
	if _, err := led.TopUp(ctx, ledger.EscrowAccount("J"), 200, ""); err != nil {
		t.Fatal(err)
	}
	for _, u := range users {
		if _, err := led.Transfer(ctx, ledger.EscrowAccount("J"), u, 100, ledger.PayoutRef("J", u)); err != nil {
			t.Fatal(err)
		}
	}
	return led
}

func TestFromDetail(t *testing.T) {
	st, err := FromDetail(context.Background(), finishedDetail(), paidLedger(t, "F1", "F2"), "http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 200 || st.Outstanding != 0 || len(st.Lines) != 2 {
		t.Fatalf("unexpected statement %+v", st)
	}
	if st.Lines[0].Score != 5 || st.Lines[1].Score != 0 {
		t.Fatalf("scores not mapped: %+v", st.Lines)
	}
	if st.Lines[0].PayoutRef != "job-payout:J:F1" || st.URL != "http://localhost:8080/jobs/J" {
		t.Fatalf("unexpected refs %+v", st)
	}
}

func TestFromDetailMarksFailedPayouts(t *testing.T) {
	st, err := FromDetail(context.Background(), finishedDetail(), paidLedger(t, "F1"), "")
	if err != nil {
		t.Fatal(err)
	}
	if !st.Lines[0].Paid || st.Lines[1].Paid {
		t.Fatalf("only F1 was paid: %+v", st.Lines)
	}
	if st.Total != 100 || st.Outstanding != 100 {
		t.Fatalf("total %v outstanding %v, want 100/100", st.Total, st.Outstanding)
	}
	var buf bytes.Buffer
	if err := Render(&buf, st); err != nil {
		t.Fatal(err)
	}
}

func TestFromDetailRefuses(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemory()
	d := finishedDetail()
	d.IsOwner = false
	if _, err := FromDetail(ctx, d, led, ""); !apperr.Is(err, apperr.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	d = finishedDetail()
	d.Job.Status = models.JobOngoing
	if _, err := FromDetail(ctx, d, led, ""); !errors.Is(err, ErrNotSettled) {
		t.Fatalf("expected not settled, got %v", err)
	}
}

func TestRenderProducesPDF(t *testing.T) {
	st, err := FromDetail(context.Background(), finishedDetail(), paidLedger(t, "F1", "F2"), "http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Render(&buf, st); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatalf("output is not a PDF: %q", buf.Bytes()[:min(8, buf.Len())])
	}
}
