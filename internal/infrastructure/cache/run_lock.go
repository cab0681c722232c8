package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"notebook-scout/internal/scraper"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	runLockPrefix = "scraper:lock:"
	runLockTTL    = 2 * time.Minute
)

// Deletes or extends the key only while it still carries our token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RunLock keeps jobs from overlapping across processes. The key expires
// unless the holder keeps refreshing it, so a crashed process frees the scope.
// Without redis every Acquire succeeds and the in-process lock is the only
// guard.
type RunLock struct {
	cache *Redis
	ttl   time.Duration
}

func NewRunLock(c *Redis) *RunLock {
	return &RunLock{cache: c, ttl: runLockTTL}
}

func (l *RunLock) Acquire(ctx context.Context, scope string) (func(), error) {
	if l == nil || l.cache.isUnavailable() {
		return func() {}, nil
	}
	rdb := l.cache.client
	key := runLockPrefix + scope
	token := uuid.NewString()

	ok, err := rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		l.cache.warnUnavailableOnce(err)
		return func() {}, nil
	}
	if !ok {
		return nil, scraper.ErrAlreadyRunning
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(l.ttl / 3)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := extendScript.Run(hctx, rdb, []string{key}, token, l.ttl.Milliseconds()).Err()
				cancel()
				if err != nil && !errors.Is(err, redis.Nil) {
					l.cache.logger.Printf("[Cache] run lock heartbeat failed key=%s err=%v", key, err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, rdb, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.cache.logger.Printf("[Cache] run lock release failed key=%s err=%v", key, err)
			}
		})
	}, nil
}
