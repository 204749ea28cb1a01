package redisad

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"barefoot_sync/internal/domain"
)

// releaseScript deletes the lease only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lease is a domain.RunLease backed by SET NX PX. It is shared by every
// process pointed at the same redis, so the api and syncer never overlap.
type Lease struct{ c *redis.Client }

func NewLease(c *redis.Client) *Lease { return &Lease{c: c} }

// Acquire takes the lease for ttl and keeps extending it every ttl/3 until
// release is called, so a run longer than ttl stays exclusive. A holder
// that dies stops renewing and the lease lapses after at most ttl.
func (l *Lease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrRunInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(key, token, ttl, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stop) })
		<-done
		n, err := releaseScript.Run(ctx, l.c, []string{key}, token).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lease %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("release lease %s: expired or taken over", key)
		}
		return nil
	}, nil
}

func (l *Lease) renew(key, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	every := ttl / 3
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), every)
		n, err := renewScript.Run(ctx, l.c, []string{key}, token, ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil && !errors.Is(err, redis.Nil):
			log.Warn().Err(err).Str("key", key).Msg("lease renewal failed, retrying")
		case n == 0:
			log.Warn().Str("key", key).Msg("lease lost before release, renewal stopped")
			return
		}
	}
}
