package notify

import (
	"context"
	"testing"

	"gigflow/apperr"
)

func TestMemoryInbox(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Send(ctx, New("bob", "alice", "job-1", Invitation, "you are invited"))
	m.Send(ctx, New("carol", "alice", "job-1", Invitation, "you are invited"))
	m.Send(ctx, New("bob", "alice", "job-1", JobStarted, "job started"))

	list, err := m.List(ctx, "bob", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Category != JobStarted {
		t.Fatalf("expected newest-first bob inbox, got %+v", list)
	}

	if err := m.MarkRead(ctx, "carol", list[0].ID); !apperr.Is(err, apperr.CodeNotFound) {
		t.Fatalf("carol cannot read bob's notification, got %v", err)
	}
	if err := m.MarkRead(ctx, "bob", list[0].ID); err != nil {
		t.Fatal(err)
	}
	list, _ = m.List(ctx, "bob", 1)
	if len(list) != 1 || !list[0].Read {
		t.Fatalf("expected read notification, got %+v", list)
	}
}
