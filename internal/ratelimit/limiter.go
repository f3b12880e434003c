// Package ratelimit counts unlock attempts per (client, key) pair.
//
// A pair moves to the limited state once MaxAttempts attempts land inside one
// window without a success. The window opens at the first attempt and is a
// hard reset point: at or after windowStart+Window the pair is clear again and
// the next attempt opens a new window with a count of one. A success clears
// the pair at once.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 10
	DefaultWindow      = time.Hour
)

type entry struct {
	attempts    int
	windowStart time.Time
}

type Limiter struct {
	mu          sync.Mutex
	entries     map[string]*entry
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(maxAttempts int, window time.Duration, opts ...Option) *Limiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}

	l := &Limiter{
		entries:     make(map[string]*entry),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func pairKey(client, key string) string {
	return client + "\x00" + key
}

// current returns the live entry for k, dropping it if its window has ended.
// Caller holds mu.
func (l *Limiter) current(k string, now time.Time) *entry {
	e, ok := l.entries[k]
	if !ok {
		return nil
	}
	if !now.Before(e.windowStart.Add(l.window)) {
		delete(l.entries, k)
		return nil
	}
	return e
}

// Begin counts one unlock attempt for the pair unless it is already limited.
// Counting happens before the password is checked, under the same lock as
// the limit test, so a burst of concurrent attempts can never get more than
// maxAttempts through in one window. When limited it returns how long until
// the window ends and the attempt is not counted.
func (l *Limiter) Begin(client, key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := pairKey(client, key)
	e := l.current(k, now)
	if e == nil {
		e = &entry{windowStart: now}
		l.entries[k] = e
	}
	if e.attempts >= l.maxAttempts {
		return e.windowStart.Add(l.window).Sub(now), true
	}
	e.attempts++
	return 0, false
}

func (l *Limiter) Reset(client, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, pairKey(client, key))
}

func (l *Limiter) Attempts(client, key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e := l.current(pairKey(client, key), l.now()); e != nil {
		return e.attempts
	}
	return 0
}

// Sweep evicts every pair whose window has ended and returns how many went.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, e := range l.entries {
		if !now.Before(e.windowStart.Add(l.window)) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// Run sweeps every interval until ctx is done. A non-positive interval
// sweeps once a minute.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
