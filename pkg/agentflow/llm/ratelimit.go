package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Tracker enforces a client-side sliding-window request budget per
// provider/model pair, so well-behaved flows rarely see a server-side 429
// at all. It also learns from the ones that slip through: a provider
// retry-after hint blocks the pair until the hinted time passes.
type Tracker struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	history map[string][]time.Time
	blocked map[string]time.Time
}

// NewTracker returns a Tracker allowing limit requests per window for each
// provider/model pair. A non-positive limit disables throttling.
func NewTracker(limit int, window time.Duration) *Tracker {
	return &Tracker{
		limit:   limit,
		window:  window,
		now:     time.Now,
		history: make(map[string][]time.Time),
		blocked: make(map[string]time.Time),
	}
}

// CheckAndWait blocks until a request slot is available for the pair,
// returning how long it waited. It returns early with the context error if
// the context is cancelled while waiting.
func (t *Tracker) CheckAndWait(ctx context.Context, provider, model string) (time.Duration, error) {
	if t == nil || t.limit <= 0 {
		return 0, nil
	}

	var waited time.Duration
	for {
		wait := t.nextWait(provider, model)
		if wait <= 0 {
			return waited, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			waited += wait
		case <-ctx.Done():
			timer.Stop()
			return waited, ctx.Err()
		}
	}
}

// RecordRequest counts one request against the pair's window. Call it once
// per attempt actually sent to the provider.
func (t *Tracker) RecordRequest(provider, model string) {
	if t == nil || t.limit <= 0 {
		return
	}
	key := provider + "/" + model
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.history[key] = append(t.pruneLocked(key, now), now)
}

// UpdateFromError learns from a provider rate-limit response. When the
// error carries a retry-after hint, the pair is blocked until then.
func (t *Tracker) UpdateFromError(provider, model string, err error) {
	if t == nil {
		return
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) || rle.RetryAfter <= 0 {
		return
	}
	key := provider + "/" + model

	t.mu.Lock()
	defer t.mu.Unlock()
	until := t.now().Add(rle.RetryAfter)
	if until.After(t.blocked[key]) {
		t.blocked[key] = until
	}
}

// nextWait returns how long the caller must wait before the pair has a
// free slot, or zero when it can go now.
func (t *Tracker) nextWait(provider, model string) time.Duration {
	key := provider + "/" + model
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if until, ok := t.blocked[key]; ok {
		if now.Before(until) {
			return until.Sub(now)
		}
		delete(t.blocked, key)
	}

	recent := t.pruneLocked(key, now)
	t.history[key] = recent
	if len(recent) < t.limit {
		return 0
	}
	// Oldest entry ages out of the window first.
	return recent[0].Add(t.window).Sub(now)
}

func (t *Tracker) pruneLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-t.window)
	recent := t.history[key][:0]
	for _, ts := range t.history[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	return recent
}
