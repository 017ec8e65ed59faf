// Package ratelimit enforces the crawler's polite request rate: a single
// global sliding window shared by every worker, collapsed from the
// teacher's per-key design since Holocron crawls one site with one
// rate budget (spec §4.6).
package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Limiter blocks callers until they can make another request without
// exceeding requestsPerMinute, grounded on the teacher's
// sliding_window.go data structure (mutex-guarded timestamp window) and
// original_source/src/holocron/batch_processor.py's RateLimiter.acquire
// (minimum inter-request delay plus a rolling 60-second window).
type Limiter struct {
	mu          sync.Mutex
	window      *list.List
	maxPerMin   int
	minInterval time.Duration
	lastRequest time.Time
}

// New builds a Limiter allowing at most requestsPerMinute requests in
// any trailing 60-second window, with a minimum delay between
// consecutive requests of 60s/requestsPerMinute.
func New(requestsPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	return &Limiter{
		window:      list.New(),
		maxPerMin:   requestsPerMinute,
		minInterval: time.Minute / time.Duration(requestsPerMinute),
	}
}

// Acquire blocks until a request slot is available or ctx is canceled.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tryAcquire reports whether a slot was claimed; if not, it returns how
// long the caller should wait before trying again.
func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.evictOld(now)

	if l.window.Len() >= l.maxPerMin {
		oldest := l.window.Front().Value.(time.Time)
		return time.Minute - now.Sub(oldest), false
	}

	if !l.lastRequest.IsZero() {
		sinceLast := now.Sub(l.lastRequest)
		if sinceLast < l.minInterval {
			return l.minInterval - sinceLast, false
		}
	}

	l.lastRequest = now
	l.window.PushBack(now)
	return 0, true
}

func (l *Limiter) evictOld(now time.Time) {
	for l.window.Len() > 0 {
		front := l.window.Front()
		if now.Sub(front.Value.(time.Time)) > time.Minute {
			l.window.Remove(front)
			continue
		}
		break
	}
}
