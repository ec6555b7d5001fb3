package session

import (
	"context"
	"sync"
	"time"

	id "accounts/pkg/domain"
)

type memoryEntry struct {
	notices   []Notice
	expiresAt time.Time
}

// MemoryStore keeps notices in process. Queues expire ttl after their last
// write, like RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[id.SessionID]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[id.SessionID]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Add(_ context.Context, sid id.SessionID, notice Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	entry, ok := s.entries[sid]
	if !ok || s.expired(entry, now) {
		entry = &memoryEntry{}
		s.entries[sid] = entry
	}
	entry.notices = append(entry.notices, notice)
	entry.expiresAt = now.Add(s.ttl)
	return nil
}

func (s *MemoryStore) Pop(_ context.Context, sid id.SessionID) ([]Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sid]
	if !ok {
		return nil, nil
	}
	delete(s.entries, sid)
	if s.expired(entry, s.now()) {
		return nil, nil
	}
	return entry.notices, nil
}

func (s *MemoryStore) expired(entry *memoryEntry, now time.Time) bool {
	return s.ttl > 0 && !now.Before(entry.expiresAt)
}
