package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an append-only in-process store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	failErr error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Counter = (*MemoryStore)(nil)
)

// FailWith makes subsequent appends return err. Pass nil to recover.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func (m *MemoryStore) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	e.Changes = cloneChanges(e.Changes)
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, q Query) ([]Entry, error) {
	m.mu.RLock()
	matched := make([]Entry, 0)
	for _, e := range m.entries {
		if matches(e, q) {
			e.Changes = cloneChanges(e.Changes)
			matched = append(matched, e)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []Entry{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (m *MemoryStore) CountByOrganization(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64)
	for _, e := range m.entries {
		out[e.OrganizationID]++
	}
	return out, nil
}

// Len reports how many entries have been appended.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func matches(e Entry, q Query) bool {
	if q.OrganizationID != "" && e.OrganizationID != q.OrganizationID {
		return false
	}
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if q.Resource != "" && e.Resource != q.Resource {
		return false
	}
	if q.ResourceID != "" && e.ResourceID != q.ResourceID {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	return true
}

// cloneChanges copies the top level so callers cannot mutate stored entries.
func cloneChanges(c Changes) Changes {
	if c == nil {
		return nil
	}
	out := make(Changes, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
