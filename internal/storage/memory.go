package storage

import (
	"fmt"
	"sync"

	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/domain"
)

// MemoryRepository implements Repository using in-memory storage for tests.
type MemoryRepository struct {
	requests map[string]descriptor.RequestDescriptor
	recent   []domain.Target
	history  []domain.HistoryEntry
	mu       sync.RWMutex
}

// NewMemoryRepository creates a new in-memory storage repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		requests: make(map[string]descriptor.RequestDescriptor),
		recent:   []domain.Target{},
		history:  []domain.HistoryEntry{},
	}
}

// SaveRequest stores a named request descriptor in memory.
func (m *MemoryRepository) SaveRequest(name string, req descriptor.RequestDescriptor) error {
	if err := validateRequestName(name); err != nil {
		return fmt.Errorf("invalid request name: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests[name] = req
	return nil
}

// LoadRequest retrieves a named request descriptor from memory.
func (m *MemoryRepository) LoadRequest(name string) (*descriptor.RequestDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[name]
	if !ok {
		return nil, fmt.Errorf("request %q not found", name)
	}
	return &req, nil
}

// ListRequests returns names of all stored requests.
func (m *MemoryRepository) ListRequests() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.requests))
	for name := range m.requests {
		names = append(names, name)
	}
	return names, nil
}

// DeleteRequest removes a stored request from memory.
func (m *MemoryRepository) DeleteRequest(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[name]; !ok {
		return fmt.Errorf("request %q not found", name)
	}
	delete(m.requests, name)
	return nil
}

// SaveRecentTarget adds a target to the recent list.
func (m *MemoryRepository) SaveRecentTarget(target domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recent = removeDuplicateTarget(m.recent, target)
	m.recent = append([]domain.Target{target}, m.recent...)
	if len(m.recent) > maxRecent {
		m.recent = m.recent[:maxRecent]
	}
	return nil
}

// GetRecentTargets returns a copy of the recent targets list.
func (m *MemoryRepository) GetRecentTargets() ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recent := make([]domain.Target, len(m.recent))
	copy(recent, m.recent)
	return recent, nil
}

// ClearRecentTargets removes all recent targets.
func (m *MemoryRepository) ClearRecentTargets() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recent = []domain.Target{}
	return nil
}

// AddHistoryEntry prepends a history entry, redacting credentials the same
// way the JSON repository does.
func (m *MemoryRepository) AddHistoryEntry(entry domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.Request = RedactRequestJSON(entry.Request)
	m.history = append([]domain.HistoryEntry{entry}, m.history...)
	return nil
}

// GetHistory returns history entries, newest first.
func (m *MemoryRepository) GetHistory(limit int) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([]domain.HistoryEntry, len(m.history))
	copy(history, m.history)
	if limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	return history, nil
}

// ClearHistory removes all history entries.
func (m *MemoryRepository) ClearHistory() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = []domain.HistoryEntry{}
	return nil
}
