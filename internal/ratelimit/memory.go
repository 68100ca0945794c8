package ratelimit

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type memoryEntry struct {
	hits   []time.Time
	window time.Duration
}

// MemoryLimiter implements a sliding-window in-memory rate limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[string]*memoryEntry),
	}
}

// Allow admits the request if fewer than limit hits were recorded in (now-window, now].
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || window <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[key]
	if entry == nil {
		entry = &memoryEntry{}
		l.entries[key] = entry
	}
	entry.window = window
	entry.hits = prune(entry.hits, now.Add(-window))

	if len(entry.hits) >= limit {
		return Result{Allowed: false, Limit: limit, Remaining: 0, Reset: entry.hits[0].Add(window)}, nil
	}
	entry.hits = append(entry.hits, now)
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(entry.hits),
		Reset:     entry.hits[0].Add(window),
	}, nil
}

// Sweep drops keys with no hits inside their window and returns how many were removed.
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, entry := range l.entries {
		entry.hits = prune(entry.hits, now.Add(-entry.window))
		if len(entry.hits) == 0 {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartSweeper runs Sweep every interval until ctx is done.
func (l *MemoryLimiter) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := l.Sweep(now); removed > 0 {
					log.WithField("keys", removed).Debug("rate limit: swept idle keys")
				}
			}
		}
	}()
}

// prune drops hits at or before cutoff; hits are kept in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
