package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"gigflow/identity"
	"gigflow/models"
	"gigflow/utils"
)

const IdempotencyTTL = 24 * time.Hour

// IdempotencyStore keeps the first response per Idempotency-Key.
type IdempotencyStore interface {
	// Reserve inserts rec unless its key exists, in which case it returns the
	// existing record and false.
	Reserve(ctx context.Context, rec models.IdempotencyRecord) (models.IdempotencyRecord, bool, error)
	Complete(ctx context.Context, key string, status int, body []byte) error
}

type MongoIdempotency struct {
	coll *mongo.Collection
}

func NewMongoIdempotency(coll *mongo.Collection) *MongoIdempotency {
	return &MongoIdempotency{coll: coll}
}

func (m *MongoIdempotency) Reserve(ctx context.Context, rec models.IdempotencyRecord) (models.IdempotencyRecord, bool, error) {
	_, err := m.coll.InsertOne(ctx, rec)
	if err == nil {
		return rec, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return models.IdempotencyRecord{}, false, err
	}
	var existing models.IdempotencyRecord
	if err := m.coll.FindOne(ctx, bson.M{"key": rec.Key}).Decode(&existing); err != nil {
		return models.IdempotencyRecord{}, false, err
	}
	return existing, false, nil
}

func (m *MongoIdempotency) Complete(ctx context.Context, key string, status int, body []byte) error {
	_, err := m.coll.UpdateOne(ctx, bson.M{"key": key},
		bson.M{"$set": bson.M{"done": true, "status": status, "body": body}})
	return err
}

// MemoryIdempotency is the in-process store for STORE=memory and tests.
type MemoryIdempotency struct {
	mu   sync.Mutex
	recs map[string]models.IdempotencyRecord
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{recs: make(map[string]models.IdempotencyRecord)}
}

func (m *MemoryIdempotency) Reserve(_ context.Context, rec models.IdempotencyRecord) (models.IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.recs[rec.Key]; ok && time.Now().Before(existing.ExpiresAt) {
		return existing, false, nil
	}
	m.recs[rec.Key] = rec
	return rec, true, nil
}

func (m *MemoryIdempotency) Complete(_ context.Context, key string, status int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[key]
	if !ok {
		return nil
	}
	rec.Done, rec.Status, rec.Body = true, status, bytes.Clone(body)
	m.recs[key] = rec
	return nil
}

func computeRequestHash(r *http.Request, body []byte, userID string) string {
	h := sha256.New()
	h.Write([]byte(r.Method + ":" + r.URL.Path + ":" + userID + ":"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// captureWriter passes the response through while keeping a copy.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

// Idempotent replays the first response for a repeated Idempotency-Key from
// the same user and request. Without the header it passes through. A key
// reused for a different request is a 409, and one whose first request is
// still running is a 409 too, so the mutation never runs twice.
func Idempotent(st IdempotencyStore) Middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next(w, r, ps)
				return
			}
			userID, _ := identity.UserID(r.Context())

			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				utils.RespondWithError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			now := time.Now()
			rec := models.IdempotencyRecord{
				Key:         userID + ":" + key,
				Method:      r.Method,
				Path:        r.URL.Path,
				UserID:      userID,
				RequestHash: computeRequestHash(r, body, userID),
				CreatedAt:   now,
				ExpiresAt:   now.Add(IdempotencyTTL),
			}
			existing, reserved, err := st.Reserve(r.Context(), rec)
			if err != nil {
				log.Error().Err(err).Str("key", key).Msg("idempotency lookup failed")
				utils.RespondWithError(w, http.StatusServiceUnavailable, "idempotency lookup error")
				return
			}

			if reserved {
				cw := &captureWriter{ResponseWriter: w}
				next(cw, r, ps)
				status := cw.status
				if status == 0 {
					status = http.StatusOK
				}
				if err := st.Complete(context.WithoutCancel(r.Context()), rec.Key, status, cw.buf.Bytes()); err != nil {
					log.Warn().Err(err).Str("key", key).Msg("idempotency record not completed")
				}
				return
			}

			switch {
			case existing.RequestHash != rec.RequestHash:
				utils.RespondWithError(w, http.StatusConflict, "idempotency-key reused for a different request")
			case !existing.Done:
				utils.RespondWithError(w, http.StatusConflict, "request with this idempotency-key is still in progress")
			default:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(existing.Status)
				w.Write(existing.Body)
			}
		}
	}
}
