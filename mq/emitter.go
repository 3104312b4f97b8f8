package mq

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// EngagementChannel carries models.JobEvent after every job mutation.
	EngagementChannel = "engagement-events"
	// InboxChannel carries models.Notification as they are stored.
	InboxChannel = "inbox-events"
)

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Subscriber interface {
	// Subscribe delivers payloads until ctx is done.
	Subscribe(ctx context.Context, channel string) <-chan []byte
}

type Broker interface {
	Publisher
	Subscriber
}

// Emit marshals v and publishes it. Failures are logged only; events are
// hints for viewers, never part of an action's outcome.
func Emit(ctx context.Context, pub Publisher, channel string, v any) {
	if pub == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("event marshal failed")
		return
	}
	if err := pub.Publish(ctx, channel, data); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("event publish failed")
		return
	}
	log.Debug().Str("channel", channel).RawJSON("event", data).Msg("event published")
}

// Redis is a Broker over Redis pub/sub, so every API instance sees every event.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.rdb.Publish(ctx, channel, payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, channel string) <-chan []byte {
	sub := r.rdb.Subscribe(ctx, channel)
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		log.Info().Str("channel", channel).Msg("listening for events")
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Local is an in-process Broker for single-instance runs and tests. Slow
// subscribers drop events rather than block publishers.
type Local struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func NewLocal() *Local { return &Local{subs: make(map[string][]chan []byte)} }

func (l *Local) Publish(_ context.Context, channel string, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs[channel] {
		select {
		case ch <- payload:
		default:
			log.Warn().Str("channel", channel).Msg("subscriber lagging, event dropped")
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, channel string) <-chan []byte {
	ch := make(chan []byte, 64)
	l.mu.Lock()
	l.subs[channel] = append(l.subs[channel], ch)
	l.mu.Unlock()
	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		subs := l.subs[channel]
		for i, c := range subs {
			if c == ch {
				l.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}
