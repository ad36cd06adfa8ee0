package web

// write_limiter.go bounds the number of catalog writes served at once.
//
// Datapoint and sequence row inserts hold a slot for the duration of the
// store call. When every slot is taken a request waits up to maxWait and is
// then answered with 503 so the ingest client backs off and retries.

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"
)

// errTooManyWrites is returned when no write slot frees up in time.
var errTooManyWrites = errors.New("too many concurrent writes, retry later")

// writeLimiter is a counting semaphore.
type writeLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// writeStatus is the limiter snapshot reported by /healthz.
type writeStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

func newWriteLimiter(maxConcurrent int, maxWait time.Duration) *writeLimiter {
	return &writeLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// acquire takes a slot. The caller must release it.
func (l *writeLimiter) acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-timer.C:
		return errTooManyWrites
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *writeLimiter) release() {
	l.active.Add(-1)
	<-l.slots
}

func (l *writeLimiter) status() writeStatus {
	return writeStatus{
		Active:        int(l.active.Load()),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}

// middleware holds a slot while next runs.
func (l *writeLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := l.acquire(r.Context()); err != nil {
			if errors.Is(err, errTooManyWrites) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			// Client went away while waiting.
			return
		}
		defer l.release()
		next.ServeHTTP(w, r)
	})
}
