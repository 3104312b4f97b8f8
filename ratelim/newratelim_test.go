package ratelim

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"

	"gigflow/identity"
)

func TestLimitPerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	h := rl.Limit(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusNoContent)
	})
	call := func(remote, user string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/jobs/J/apply", nil)
		req.RemoteAddr = remote
		if user != "" {
			req = req.WithContext(identity.WithUser(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		h(rec, req, nil)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := call("10.0.0.1:1111", ""); code != http.StatusNoContent {
			t.Fatalf("request %d: %d", i, code)
		}
	}
	// a different source port is the same client
	if code := call("10.0.0.1:2222", ""); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := call("10.0.0.2:1111", ""); code != http.StatusNoContent {
		t.Fatalf("other IP throttled: %d", code)
	}
	if code := call("10.0.0.1:1111", "F1"); code != http.StatusNoContent {
		t.Fatalf("signed-in user should have their own bucket: %d", code)
	}
}

func TestSweepDropsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.getLimiter("ip:a")
	now = now.Add(idleAfter + time.Second)
	rl.getLimiter("ip:b")
	rl.Sweep()

	if _, ok := rl.visitors["ip:a"]; ok {
		t.Fatal("idle visitor kept")
	}
	if _, ok := rl.visitors["ip:b"]; !ok {
		t.Fatal("active visitor dropped")
	}
}
