package threat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrWorkInProgressNotProposed is returned by any construction or mutation
// that would leave a control set in progress without being proposed.
var ErrWorkInProgressNotProposed = errors.New("control set cannot be work in progress without being proposed")

// ControlSet is one control located at one asset.
//
// A control set is either not proposed, proposed, or proposed and still
// being put in place (work in progress). Work in progress without proposal
// is never observable: NewControlSet, the setters and JSON decoding refuse
// it and leave the value unchanged.
type ControlSet struct {
	URI      string
	Control  string
	AssetURI string
	AssetID  string

	Assertable       bool
	CoverageLevel    Level
	CoverageAsserted bool

	proposed       bool
	workInProgress bool
}

// ControlSetSpec holds the fields of a new control set.
type ControlSetSpec struct {
	URI              string
	Control          string
	AssetURI         string
	AssetID          string
	Proposed         bool
	WorkInProgress   bool
	Assertable       bool
	CoverageLevel    Level
	CoverageAsserted bool
}

// NewControlSet creates a control set.
func NewControlSet(spec ControlSetSpec) (*ControlSet, error) {
	if spec.URI == "" {
		return nil, errors.New("control set URI is required")
	}
	if spec.WorkInProgress && !spec.Proposed {
		return nil, fmt.Errorf("%w: %s", ErrWorkInProgressNotProposed, spec.URI)
	}
	return &ControlSet{
		URI:              spec.URI,
		Control:          spec.Control,
		AssetURI:         spec.AssetURI,
		AssetID:          spec.AssetID,
		Assertable:       spec.Assertable,
		CoverageLevel:    spec.CoverageLevel,
		CoverageAsserted: spec.CoverageAsserted,
		proposed:         spec.Proposed,
		workInProgress:   spec.WorkInProgress,
	}, nil
}

// Proposed reports whether the control is proposed for (or present in) the system.
func (c *ControlSet) Proposed() bool { return c.proposed }

// WorkInProgress reports whether a proposed control is still being implemented.
func (c *ControlSet) WorkInProgress() bool { return c.workInProgress }

// SetProposed changes the proposed flag. Withdrawing the proposal of a
// control set that is in progress fails.
func (c *ControlSet) SetProposed(proposed bool) error {
	return c.SetState(proposed, c.workInProgress)
}

// SetWorkInProgress changes the work in progress flag. Marking a control
// set that is not proposed fails.
func (c *ControlSet) SetWorkInProgress(wip bool) error {
	return c.SetState(c.proposed, wip)
}

// SetState sets both flags at once.
func (c *ControlSet) SetState(proposed, wip bool) error {
	if wip && !proposed {
		return fmt.Errorf("%w: %s", ErrWorkInProgressNotProposed, c.URI)
	}
	c.proposed = proposed
	c.workInProgress = wip
	return nil
}

type controlSetJSON struct {
	URI              string `json:"uri"`
	Control          string `json:"control"`
	AssetURI         string `json:"asset_uri"`
	AssetID          string `json:"asset_id,omitempty"`
	Proposed         bool   `json:"proposed"`
	WorkInProgress   bool   `json:"work_in_progress"`
	Assertable       bool   `json:"assertable"`
	CoverageLevel    *Level `json:"coverage_level,omitempty"`
	CoverageAsserted bool   `json:"coverage_asserted"`
}

// MarshalJSON implements json.Marshaler.
func (c *ControlSet) MarshalJSON() ([]byte, error) {
	out := controlSetJSON{
		URI:              c.URI,
		Control:          c.Control,
		AssetURI:         c.AssetURI,
		AssetID:          c.AssetID,
		Proposed:         c.proposed,
		WorkInProgress:   c.workInProgress,
		Assertable:       c.Assertable,
		CoverageAsserted: c.CoverageAsserted,
	}
	if !c.CoverageLevel.IsZero() {
		lvl := c.CoverageLevel
		out.CoverageLevel = &lvl
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. A document that is in progress
// without being proposed is rejected.
func (c *ControlSet) UnmarshalJSON(data []byte) error {
	var in controlSetJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	spec := ControlSetSpec{
		URI:              in.URI,
		Control:          in.Control,
		AssetURI:         in.AssetURI,
		AssetID:          in.AssetID,
		Proposed:         in.Proposed,
		WorkInProgress:   in.WorkInProgress,
		Assertable:       in.Assertable,
		CoverageAsserted: in.CoverageAsserted,
	}
	if in.CoverageLevel != nil {
		spec.CoverageLevel = *in.CoverageLevel
	}
	cs, err := NewControlSet(spec)
	if err != nil {
		return err
	}
	*c = *cs
	return nil
}

// ControlSetState is the user-editable part of a control set.
type ControlSetState struct {
	URI            string `json:"uri"`
	Proposed       bool   `json:"proposed"`
	WorkInProgress bool   `json:"work_in_progress,omitempty"`
}

// State returns the control set's current state.
func (c *ControlSet) State() ControlSetState {
	return ControlSetState{URI: c.URI, Proposed: c.proposed, WorkInProgress: c.workInProgress}
}
