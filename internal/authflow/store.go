package authflow

import (
	"context"
	"sync"
	"time"
)

// FlowStore persists suspended flows under their correlation token. Take is
// destructive: a flow can be taken at most once.
type FlowStore interface {
	// Put stores flow under token, replacing any previous entry.
	Put(ctx context.Context, token string, flow *Flow) error

	// Take removes and returns the flow stored under token. It returns
	// ErrFlowNotFound when there is none.
	Take(ctx context.Context, token string) (*Flow, error)
}

type memoryEntry struct {
	flow      *Flow
	expiresAt time.Time
}

// MemoryStore is an in-process FlowStore.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore. A positive ttl expires entries that
// are not taken in time.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Put implements FlowStore.
func (s *MemoryStore) Put(_ context.Context, token string, flow *Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{flow: flow}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[token] = entry
	return nil
}

// Take implements FlowStore.
func (s *MemoryStore) Take(_ context.Context, token string) (*Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return nil, ErrFlowNotFound
	}
	delete(s.entries, token)

	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		return nil, ErrFlowNotFound
	}
	return entry.flow, nil
}

// Len returns the number of stored flows, including expired ones not yet
// taken.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
