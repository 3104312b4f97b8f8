package rdx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"gigflow/utils"
)

var Conn *redis.Client

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock held")

func Init(ctx context.Context, addr, password string) error {
	Conn = redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := Conn.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	log.Info().Str("addr", addr).Msg("redis connected")
	return nil
}

// releaseScript deletes the key only when it still holds our token, so an
// expired lock taken over by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out short-lived SET NX locks.
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLocker(rdb *redis.Client, ttl time.Duration) *Locker {
	return &Locker{rdb: rdb, ttl: ttl}
}

// Acquire takes every key in sorted order and returns a release func. On
// failure the keys already held are released.
func (l *Locker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = utils.SortedUnique(keys)
	token := utils.GetUUID()
	var held []string
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{held[i]}, token).Err(); err != nil {
				log.Warn().Err(err).Str("key", held[i]).Msg("lock release failed")
			}
		}
	}
	for _, k := range keys {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			release()
			return nil, fmt.Errorf("lock %s: %w", k, err)
		}
		if !ok {
			release()
			return nil, fmt.Errorf("%w: %s", ErrLocked, k)
		}
		held = append(held, k)
	}
	return release, nil
}
