// Package identity resolves who is calling. Handlers and services read the
// caller with UserID; the HTTP layer fills it from a bearer token.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"gigflow/apperr"
	"gigflow/globals"
	"gigflow/utils"
)

// JWT claims
type Claims struct {
	Username string   `json:"username"`
	UserID   string   `json:"userId"`
	Role     []string `json:"role"`
	jwt.RegisteredClaims
}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, globals.UserIDKey, userID)
}

// UserID returns the caller, or false when the request is anonymous.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(globals.UserIDKey).(string)
	return id, ok && id != ""
}

// Require is UserID as an error: anonymous callers get ErrUnauthenticated.
func Require(ctx context.Context) (string, error) {
	id, ok := UserID(ctx)
	if !ok {
		return "", apperr.ErrUnauthenticated
	}
	return id, nil
}

func IssueToken(secret []byte, userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) *Verifier { return &Verifier{secret: secret} }

// Validate parses a raw token (without the "Bearer " prefix).
func (v *Verifier) Validate(raw string) (*Claims, error) {
	if raw == "" {
		return nil, errors.New("missing token")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %w", err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// tokenFrom reads the bearer header, falling back to ?token= for websocket
// upgrades where browsers cannot set headers.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return h[7:]
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("token")
	}
	return ""
}

func unauthorized(w http.ResponseWriter) {
	utils.RespondWithJSON(w, http.StatusUnauthorized, apperr.Fail[any](apperr.ErrUnauthenticated))
}

func (v *Verifier) Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		claims, err := v.Validate(tokenFrom(r))
		if err != nil {
			unauthorized(w)
			return
		}
		next(w, r.WithContext(WithUser(r.Context(), claims.UserID)), ps)
	}
}

func (v *Verifier) OptionalAuth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if claims, err := v.Validate(tokenFrom(r)); err == nil {
			r = r.WithContext(WithUser(r.Context(), claims.UserID))
		}
		// Proceed regardless of token state
		next(w, r, ps)
	}
}
