package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Spyderisk/system-modeller-sub004/threat"
	"github.com/Spyderisk/system-modeller-sub004/validator"
)

// Common errors returned by store operations.
var (
	// ErrNotFound is returned when a requested assessment or state record
	// does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidKey is returned when an ID is empty.
	ErrInvalidKey = errors.New("store: invalid key")

	// ErrStorageFailed is returned when the underlying backend fails.
	ErrStorageFailed = errors.New("store: storage operation failed")
)

// Store persists assessments and the control set decisions users make
// about a system model between validation runs.
type Store interface {
	// SaveAssessment stores a under a.ID for the given system model,
	// replacing any assessment with the same ID.
	SaveAssessment(ctx context.Context, systemModelID string, a *validator.Assessment) error

	// LoadAssessment returns the assessment with the given ID.
	// Returns ErrNotFound if it does not exist.
	LoadAssessment(ctx context.Context, id string) (*validator.Assessment, error)

	// LatestAssessment returns the most recently created assessment of a
	// system model. Returns ErrNotFound if there is none.
	LatestAssessment(ctx context.Context, systemModelID string) (*validator.Assessment, error)

	// DeleteAssessment removes an assessment.
	// Returns ErrNotFound if it does not exist.
	DeleteAssessment(ctx context.Context, id string) error

	// SaveControlSetStates replaces the control set states of a system model.
	SaveControlSetStates(ctx context.Context, systemModelID string, states []threat.ControlSetState) error

	// LoadControlSetStates returns the saved control set states of a system
	// model, or an empty slice if none were saved.
	LoadControlSetStates(ctx context.Context, systemModelID string) ([]threat.ControlSetState, error)

	// Close releases the backend's resources.
	Close() error
}

// record is the stored form of an assessment.
type record struct {
	ID            string
	SystemModelID string
	CreatedAt     time.Time
	Payload       []byte
}

func encodeAssessment(systemModelID string, a *validator.Assessment) (record, error) {
	if a == nil || a.ID == "" {
		return record{}, fmt.Errorf("%w: assessment has no id", ErrInvalidKey)
	}
	if systemModelID == "" {
		return record{}, fmt.Errorf("%w: empty system model id", ErrInvalidKey)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return record{}, fmt.Errorf("encode assessment %s: %w", a.ID, err)
	}
	return record{ID: a.ID, SystemModelID: systemModelID, CreatedAt: a.CreatedAt, Payload: data}, nil
}

func decodeAssessment(data []byte) (*validator.Assessment, error) {
	var a validator.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	return &a, nil
}

func encodeStates(systemModelID string, states []threat.ControlSetState) ([]byte, error) {
	if systemModelID == "" {
		return nil, fmt.Errorf("%w: empty system model id", ErrInvalidKey)
	}
	if states == nil {
		states = []threat.ControlSetState{}
	}
	return json.Marshal(states)
}

func decodeStates(data []byte) ([]threat.ControlSetState, error) {
	states := []threat.ControlSetState{}
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("decode control set states: %w", err)
	}
	return states, nil
}
