// Package flood limits how often a single client may trigger upstream resolutions.
package flood

import (
	"context"
	"sync"
	"time"
)

const (
	// window is the sliding window over which requests are counted.
	window = time.Minute
	// cleanupInterval is how often idle clients are dropped.
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long a client may stay silent before its entry is dropped.
	idleTimeout = 10 * time.Minute
)

// Limiter is a per-client sliding window rate limiter.
type Limiter struct {
	limitPerMinute int
	clients        map[string]*clientEntry
	mutex          sync.Mutex
	now            func() time.Time
}

type clientEntry struct {
	requests []time.Time
	lastSeen time.Time
}

// Stats describes the limiter state.
type Stats struct {
	ActiveClients  int `json:"active_clients"`
	LimitPerMinute int `json:"limit_per_minute"`
}

// NewLimiter creates a limiter allowing limitPerMinute requests per client. A limit of zero or
// less allows everything.
func NewLimiter(limitPerMinute int) *Limiter {
	return &Limiter{
		limitPerMinute: limitPerMinute,
		clients:        make(map[string]*clientEntry),
		now:            time.Now,
	}
}

// Allow records a request from client and reports whether it is within the limit.
func (l *Limiter) Allow(client string) bool {
	if l.limitPerMinute <= 0 {
		return true
	}

	now := l.now()

	l.mutex.Lock()
	defer l.mutex.Unlock()

	entry, exists := l.clients[client]
	if !exists {
		entry = &clientEntry{requests: make([]time.Time, 0, l.limitPerMinute+1)}
		l.clients[client] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-window)
	kept := entry.requests[:0]
	for _, ts := range entry.requests {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	entry.requests = kept

	if len(entry.requests) >= l.limitPerMinute {
		return false
	}

	entry.requests = append(entry.requests, now)
	return true
}

// Run drops idle clients periodically until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.prune()
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *Limiter) prune() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := l.now().Add(-idleTimeout)
	for client, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, client)
		}
	}
}

// GetStats returns a snapshot of the limiter state.
func (l *Limiter) GetStats() Stats {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return Stats{
		ActiveClients:  len(l.clients),
		LimitPerMinute: l.limitPerMinute,
	}
}
