package scraper

import (
	"context"
	"sync"
)

// RunLock guards a scope so only one job runs against it at a time. Acquire
// returns ErrAlreadyRunning when the scope is held.
type RunLock interface {
	Acquire(ctx context.Context, scope string) (release func(), err error)
}

type MemoryRunLock struct {
	mu     sync.Mutex
	scopes map[string]struct{}
}

func NewMemoryRunLock() *MemoryRunLock {
	return &MemoryRunLock{scopes: map[string]struct{}{}}
}

func (l *MemoryRunLock) Acquire(_ context.Context, scope string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.scopes[scope]; held {
		return nil, ErrAlreadyRunning
	}
	l.scopes[scope] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.scopes, scope)
			l.mu.Unlock()
		})
	}, nil
}

// ChainLocks acquires every lock in order and releases in reverse. A failure
// releases whatever was already taken.
func ChainLocks(locks ...RunLock) RunLock {
	return chainLock(locks)
}

type chainLock []RunLock

func (c chainLock) Acquire(ctx context.Context, scope string) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		if l == nil {
			continue
		}
		r, err := l.Acquire(ctx, scope)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, r)
	}
	return releaseAll, nil
}
