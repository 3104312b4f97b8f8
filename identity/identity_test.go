package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"

	"gigflow/apperr"
)

var secret = []byte("test-secret")

func echoUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, _ := UserID(r.Context())
	w.Write([]byte(id))
}

func TestAuthenticateAcceptsValidToken(t *testing.T) {
	tok, err := IssueToken(secret, "u1", "alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	h := NewVerifier(secret).Authenticate(echoUser)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h(rec, req, nil)

	if rec.Code != http.StatusOK || rec.Body.String() != "u1" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuthenticateRejects(t *testing.T) {
	expired, _ := IssueToken(secret, "u1", "alice", -time.Minute)
	forged, _ := IssueToken([]byte("other"), "u1", "alice", time.Hour)
	for name, header := range map[string]string{
		"missing": "",
		"format":  "Token abc",
		"expired": "Bearer " + expired,
		"forged":  "Bearer " + forged,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			NewVerifier(secret).Authenticate(echoUser)(rec, req, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestOptionalAuthPassesAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	NewVerifier(secret).OptionalAuth(echoUser)(rec, req, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequire(t *testing.T) {
	if _, err := Require(context.Background()); !apperr.Is(err, apperr.CodeUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	id, err := Require(WithUser(context.Background(), "u9"))
	if err != nil || id != "u9" {
		t.Fatalf("got %q %v", id, err)
	}
}
