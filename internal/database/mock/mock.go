// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/missing-finder/internal/database"
)

// MockCaseStore is an in-memory implementation of database.Store
type MockCaseStore struct {
	mu       sync.RWMutex
	open     map[string]*database.Case
	resolved map[string]*database.Case

	// Error injection
	GetError         error
	ListError        error
	InsertError      error
	MoveError        error
	DeleteError      error
	InsertCalls      int
	MoveToResolvedFn func(id string) // called before a move, for race tests
}

// NewMockCaseStore creates a new mock case store
func NewMockCaseStore() *MockCaseStore {
	return &MockCaseStore{
		open:     make(map[string]*database.Case),
		resolved: make(map[string]*database.Case),
	}
}

// AddCase seeds the store with a case in the set matching its state
func (m *MockCaseStore) AddCase(c database.Case) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.State == database.StateFound {
		m.resolved[c.ID] = c.Clone()
		return
	}
	c.State = database.StateOpen
	m.open[c.ID] = c.Clone()
}

// GetCase retrieves a case from either set
func (m *MockCaseStore) GetCase(ctx context.Context, id string) (*database.Case, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.open[id]; ok {
		return c.Clone(), nil
	}
	if c, ok := m.resolved[id]; ok {
		return c.Clone(), nil
	}
	return nil, nil
}

// ListOpen returns every open case
func (m *MockCaseStore) ListOpen(ctx context.Context) ([]database.Case, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedCases(m.open, ""), nil
}

// ListByOwner returns the owner's cases in the given state
func (m *MockCaseStore) ListByOwner(ctx context.Context, ownerID string, state database.CaseState) ([]database.Case, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if state == database.StateFound {
		return sortedCases(m.resolved, ownerID), nil
	}
	return sortedCases(m.open, ownerID), nil
}

// CountOpen returns the number of open cases
func (m *MockCaseStore) CountOpen(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.open), nil
}

// InsertCase stores a new open case
func (m *MockCaseStore) InsertCase(ctx context.Context, c *database.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++
	if m.InsertError != nil {
		return m.InsertError
	}
	stored := c.Clone()
	stored.State = database.StateOpen
	m.open[c.ID] = stored
	return nil
}

// MoveToResolved moves an open case into the resolved set
func (m *MockCaseStore) MoveToResolved(ctx context.Context, id string, resolvedAt time.Time) error {
	if m.MoveToResolvedFn != nil {
		m.MoveToResolvedFn(id)
	}
	if m.MoveError != nil {
		return m.MoveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.open[id]
	if !ok {
		return database.ErrNotOpen
	}
	delete(m.open, id)
	c.State = database.StateFound
	c.ResolvedAt = &resolvedAt
	m.resolved[id] = c
	return nil
}

// DeleteResolved removes a resolved case
func (m *MockCaseStore) DeleteResolved(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resolved[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.resolved, id)
	return nil
}

// Close is a no-op
func (m *MockCaseStore) Close() error {
	return nil
}

// sortedCases returns copies ordered by sighting date (newest first), then ID.
func sortedCases(set map[string]*database.Case, ownerID string) []database.Case {
	out := make([]database.Case, 0, len(set))
	for _, c := range set {
		if ownerID != "" && c.OwnerID != ownerID {
			continue
		}
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SightingDate.Equal(out[j].SightingDate) {
			return out[i].SightingDate.After(out[j].SightingDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
