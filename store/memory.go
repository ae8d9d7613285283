package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Spyderisk/system-modeller-sub004/threat"
	"github.com/Spyderisk/system-modeller-sub004/validator"
)

// Memory is an in-process Store. Assessments are kept encoded so callers
// never share object graphs with the store.
type Memory struct {
	mu          sync.RWMutex
	assessments map[string]record
	states      map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		assessments: make(map[string]record),
		states:      make(map[string][]byte),
	}
}

// SaveAssessment implements Store.
func (m *Memory) SaveAssessment(_ context.Context, systemModelID string, a *validator.Assessment) error {
	rec, err := encodeAssessment(systemModelID, a)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[rec.ID] = rec
	return nil
}

// LoadAssessment implements Store.
func (m *Memory) LoadAssessment(_ context.Context, id string) (*validator.Assessment, error) {
	m.mu.RLock()
	rec, ok := m.assessments[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	return decodeAssessment(rec.Payload)
}

// LatestAssessment implements Store.
func (m *Memory) LatestAssessment(_ context.Context, systemModelID string) (*validator.Assessment, error) {
	m.mu.RLock()
	var latest *record
	for id := range m.assessments {
		rec := m.assessments[id]
		if rec.SystemModelID != systemModelID {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) ||
			(rec.CreatedAt.Equal(latest.CreatedAt) && rec.ID > latest.ID) {
			latest = &rec
		}
	}
	m.mu.RUnlock()
	if latest == nil {
		return nil, fmt.Errorf("system model %s: %w", systemModelID, ErrNotFound)
	}
	return decodeAssessment(latest.Payload)
}

// DeleteAssessment implements Store.
func (m *Memory) DeleteAssessment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assessments[id]; !ok {
		return fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	delete(m.assessments, id)
	return nil
}

// SaveControlSetStates implements Store.
func (m *Memory) SaveControlSetStates(_ context.Context, systemModelID string, states []threat.ControlSetState) error {
	data, err := encodeStates(systemModelID, states)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[systemModelID] = data
	return nil
}

// LoadControlSetStates implements Store.
func (m *Memory) LoadControlSetStates(_ context.Context, systemModelID string) ([]threat.ControlSetState, error) {
	m.mu.RLock()
	data, ok := m.states[systemModelID]
	m.mu.RUnlock()
	if !ok {
		return []threat.ControlSetState{}, nil
	}
	return decodeStates(data)
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
