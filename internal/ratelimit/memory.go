package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps hit logs in process memory. A background goroutine
// periodically drops keys whose hits have all expired; Close stops it.
type MemoryStore struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	maxAge time.Duration
	stop   chan struct{}
	done   chan struct{}
}

// NewMemoryStore starts a store that sweeps every interval, forgetting keys
// with no hit newer than maxAge. maxAge should be at least the longest
// window used with the store.
func NewMemoryStore(interval, maxAge time.Duration) *MemoryStore {
	s := &MemoryStore{
		hits:   make(map[string][]time.Time),
		maxAge: maxAge,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.sweepLoop(interval)
	return s
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (int, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hits := prune(s.hits[key], now.Add(-window))
	allowed := len(hits) < limit
	if allowed {
		hits = append(hits, now)
	}
	if len(hits) == 0 {
		delete(s.hits, key)
		return 0, now, allowed, nil
	}
	s.hits[key] = hits
	return len(hits), hits[0], allowed, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hits)
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryStore) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Sweep drops keys with no hit newer than now-maxAge.
func (s *MemoryStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.maxAge)
	for key, hits := range s.hits {
		if kept := prune(hits, cutoff); len(kept) == 0 {
			delete(s.hits, key)
		} else {
			s.hits[key] = kept
		}
	}
}

// prune drops hits at or before cutoff. hits is sorted ascending.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
