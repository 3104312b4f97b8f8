package mq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gigflow/models"
)

func TestLocalEmitDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewLocal()
	ch := b.Subscribe(ctx, EngagementChannel)
	Emit(ctx, b, EngagementChannel, models.JobEvent{JobID: "job-1", Action: "start"})

	select {
	case raw := <-ch:
		var ev models.JobEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.JobID != "job-1" || ev.Action != "start" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestLocalSubscriptionEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewLocal()
	ch := b.Subscribe(ctx, InboxChannel)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	// publishing after close must not panic
	if err := b.Publish(context.Background(), InboxChannel, []byte("{}")); err != nil {
		t.Fatal(err)
	}
}
