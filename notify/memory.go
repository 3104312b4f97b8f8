package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gigflow/apperr"
	"gigflow/models"
)

// Memory keeps notifications in process. Fail makes every Send return the
// given error, for exercising callers that must not depend on delivery.
type Memory struct {
	mu   sync.Mutex
	seq  int
	sent []models.Notification
	Fail error
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Send(_ context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.seq++
	n.ID = fmt.Sprintf("n-%d", m.seq)
	n.CreatedAt = time.Now()
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of everything delivered so far, oldest first.
func (m *Memory) Sent() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Notification(nil), m.sent...)
}

func (m *Memory) List(_ context.Context, userID string, limit int64) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Notification{}
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].ReceiverID == userID {
			out = append(out, m.sent[i])
		}
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sent {
		if m.sent[i].ID == id && m.sent[i].ReceiverID == userID {
			m.sent[i].Read = true
			return nil
		}
	}
	return apperr.New(apperr.CodeNotFound, "notification not found")
}
