package handlers

import (
	"sync"
	"time"
)

// cooldownStore throttles email reissues per user. Entries are pruned
// lazily on writes; there is no background timer.
type cooldownStore struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newCooldownStore() *cooldownStore {
	return &cooldownStore{
		last: make(map[string]time.Time),
	}
}

// Allow reports whether key may issue again, and if not, how long until it
// can. A successful call marks the key as issued now.
func (s *cooldownStore) Allow(key string, window time.Duration) (bool, time.Duration) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if issued, ok := s.last[key]; ok {
		if elapsed := now.Sub(issued); elapsed < window {
			return false, window - elapsed
		}
	}

	for k, issued := range s.last {
		if now.Sub(issued) >= window {
			delete(s.last, k)
		}
	}

	s.last[key] = now
	return true, 0
}
