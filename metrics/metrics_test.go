package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"gigflow/apperr"
)

func TestObserveActionLabelsOutcome(t *testing.T) {
	before := testutil.ToFloat64(ActionsTotal.WithLabelValues("accept", "conflict"))
	ObserveAction("accept", time.Now(), apperr.ErrSlotFull)
	after := testutil.ToFloat64(ActionsTotal.WithLabelValues("accept", "conflict"))
	if after != before+1 {
		t.Fatalf("expected conflict counter to grow by 1, got %v -> %v", before, after)
	}

	okBefore := testutil.ToFloat64(ActionsTotal.WithLabelValues("accept", "ok"))
	ObserveAction("accept", time.Now(), nil)
	if got := testutil.ToFloat64(ActionsTotal.WithLabelValues("accept", "ok")); got != okBefore+1 {
		t.Fatalf("expected ok counter to grow by 1, got %v", got)
	}
}
