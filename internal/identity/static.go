package identity

import (
	"context"
	"sync"
)

// Static is an in-memory Directory for tests and local development.
type Static struct {
	mu      sync.Mutex
	records map[string]Principal
	deleted []string

	// DeleteErr, when set, is returned by Delete. Lets tests exercise the
	// soft-failure path of employee removal.
	DeleteErr error
}

var _ Directory = (*Static)(nil)

// NewStatic creates a directory preloaded with the given principals.
func NewStatic(principals ...Principal) *Static {
	s := &Static{records: make(map[string]Principal)}
	for _, p := range principals {
		s.records[p.ID] = p
	}
	return s
}

// Put seeds or replaces a principal record.
func (s *Static) Put(p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[p.ID] = p
}

func (s *Static) Resolve(ctx context.Context, ids []string) ([]Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Principal
	for _, id := range ids {
		if p, ok := s.records[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Static) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.records, id)
	s.deleted = append(s.deleted, id)
	return nil
}

// Deleted reports the ids removed so far, in order.
func (s *Static) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.deleted))
	copy(out, s.deleted)
	return out
}
