package matter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a matter does not exist in the store.
var ErrNotFound = errors.New("matter not found")

// Store is the persistence boundary for matters. Every write is a
// full-document upsert with last-writer-wins semantics; there is no
// delta primitive. Callers that need read-merge-write use Update.
type Store interface {
	// Get returns the matter with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Matter, error)

	// Set upserts the full matter. Last writer wins.
	Set(ctx context.Context, m *Matter) error

	// Update is a read-merge-write convenience: it fetches the matter,
	// applies the partial update on top, writes it back, and returns
	// the merged result. Same last-writer-wins semantics as Set.
	Update(ctx context.Context, id string, u Update) (*Matter, error)

	// Delete removes a matter. Deleting an absent matter is a no-op.
	Delete(ctx context.Context, id string) error

	// List returns all matters, newest first.
	List(ctx context.Context) ([]*Matter, error)
}

// MemoryStore is an in-memory Store. Matters are deep-copied on every
// read and write so no caller holds a reference it can mutate without
// persisting, which keeps the last-writer-wins contract honest.
type MemoryStore struct {
	mu      sync.RWMutex
	matters map[string]json.RawMessage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{matters: make(map[string]json.RawMessage)}
}

// Get returns the matter with the given ID, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Matter, error) {
	s.mu.RLock()
	raw, ok := s.matters[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var m Matter
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding matter %s: %w", id, err)
	}
	return &m, nil
}

// Set upserts the full matter.
func (s *MemoryStore) Set(ctx context.Context, m *Matter) error {
	if m == nil || m.ID == "" {
		return errors.New("matter must have an ID")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding matter %s: %w", m.ID, err)
	}
	s.mu.Lock()
	s.matters[m.ID] = raw
	s.mu.Unlock()
	return nil
}

// Update fetches, merges and writes back the matter.
func (s *MemoryStore) Update(ctx context.Context, id string, u Update) (*Matter, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Apply(m)
	if err := s.Set(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes a matter. Deleting an absent matter is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.matters, id)
	s.mu.Unlock()
	return nil
}

// List returns all matters, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*Matter, error) {
	s.mu.RLock()
	raws := make([]json.RawMessage, 0, len(s.matters))
	for _, raw := range s.matters {
		raws = append(raws, raw)
	}
	s.mu.RUnlock()

	matters := make([]*Matter, 0, len(raws))
	for _, raw := range raws {
		var m Matter
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decoding matter: %w", err)
		}
		matters = append(matters, &m)
	}
	sort.Slice(matters, func(i, j int) bool {
		return matters[i].CreatedAt.After(matters[j].CreatedAt)
	})
	return matters, nil
}

var _ Store = (*MemoryStore)(nil)
