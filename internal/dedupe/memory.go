package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore is a bounded, expiring in-process id set. The oldest ids are
// evicted first once size is reached.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (s *MemoryStore) MarkSeen(_ context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, ErrEmptyID
	}
	// Contains+Add must be atomic across concurrent webhook deliveries.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Contains(messageID) {
		return false, nil
	}
	s.cache.Add(messageID, struct{}{})
	return true, nil
}

func (s *MemoryStore) Forget(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(messageID)
	return nil
}

// Len reports the number of remembered ids.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
