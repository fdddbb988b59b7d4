package query

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store. It backs tests and single-node
// deployments that do not configure postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	queries map[string]Query
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{queries: make(map[string]Query)}
}

func (s *MemoryStore) Create(ctx context.Context, q *Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[q.ID] = clone(q)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queries[id]
	if !ok {
		return nil, nil
	}
	out := clone(&q)
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, q *Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[q.ID] = clone(q)
	return nil
}

func (s *MemoryStore) GetCompletedByCacheKey(ctx context.Context, key string) (*Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *Query
	for id := range s.queries {
		q := s.queries[id]
		if q.CacheKey != key || q.Status != StatusComplete {
			continue
		}
		if latest == nil || q.UpdatedAt.After(latest.UpdatedAt) {
			copied := clone(&q)
			latest = &copied
		}
	}
	return latest, nil
}

func clone(q *Query) Query {
	out := *q
	if q.Sources != nil {
		out.Sources = append([]string(nil), q.Sources...)
	}
	return out
}
