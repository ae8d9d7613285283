package threat_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spyderisk/system-modeller-sub004/threat"
)

func newControlSet(t *testing.T, uri string, proposed, wip bool) *threat.ControlSet {
	t.Helper()
	cs, err := threat.NewControlSet(threat.ControlSetSpec{
		URI:            uri,
		Control:        "Firewall",
		AssetURI:       "system#h1",
		Proposed:       proposed,
		WorkInProgress: wip,
	})
	require.NoError(t, err)
	return cs
}

func TestNewControlSet(t *testing.T) {
	cs := newControlSet(t, "cs1", true, true)
	assert.True(t, cs.Proposed())
	assert.True(t, cs.WorkInProgress())

	_, err := threat.NewControlSet(threat.ControlSetSpec{URI: "cs2", WorkInProgress: true})
	assert.True(t, errors.Is(err, threat.ErrWorkInProgressNotProposed))

	_, err = threat.NewControlSet(threat.ControlSetSpec{})
	assert.Error(t, err)
}

func TestControlSet_Invariant(t *testing.T) {
	tests := []struct {
		name         string
		proposed     bool
		wip          bool
		mutate       func(*threat.ControlSet) error
		wantErr      bool
		wantProposed bool
		wantWIP      bool
	}{
		{"propose", false, false, func(c *threat.ControlSet) error { return c.SetProposed(true) }, false, true, false},
		{"start work when proposed", true, false, func(c *threat.ControlSet) error { return c.SetWorkInProgress(true) }, false, true, true},
		{"start work when not proposed", false, false, func(c *threat.ControlSet) error { return c.SetWorkInProgress(true) }, true, false, false},
		{"withdraw while in progress", true, true, func(c *threat.ControlSet) error { return c.SetProposed(false) }, true, true, true},
		{"finish work", true, true, func(c *threat.ControlSet) error { return c.SetWorkInProgress(false) }, false, true, false},
		{"set both off", true, true, func(c *threat.ControlSet) error { return c.SetState(false, false) }, false, false, false},
		{"set invalid state", true, false, func(c *threat.ControlSet) error { return c.SetState(false, true) }, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := newControlSet(t, "cs", tt.proposed, tt.wip)
			err := tt.mutate(cs)
			if tt.wantErr {
				assert.True(t, errors.Is(err, threat.ErrWorkInProgressNotProposed))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantProposed, cs.Proposed())
			assert.Equal(t, tt.wantWIP, cs.WorkInProgress())
			assert.True(t, !cs.WorkInProgress() || cs.Proposed())
		})
	}
}

func TestControlSet_JSON(t *testing.T) {
	cs := newControlSet(t, "cs1", true, true)
	cs.CoverageLevel = threat.Level{ID: "CoverageHigh", Label: "High", Value: 3}

	data, err := json.Marshal(cs)
	require.NoError(t, err)

	var decoded threat.ControlSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, cs.URI, decoded.URI)
	assert.True(t, decoded.Proposed())
	assert.True(t, decoded.WorkInProgress())
	assert.Equal(t, cs.CoverageLevel, decoded.CoverageLevel)

	t.Run("invalid document leaves value unchanged", func(t *testing.T) {
		target := newControlSet(t, "keep", false, false)
		err := json.Unmarshal([]byte(`{"uri":"bad","proposed":false,"work_in_progress":true}`), target)
		assert.True(t, errors.Is(err, threat.ErrWorkInProgressNotProposed))
		assert.Equal(t, "keep", target.URI)
		assert.False(t, target.WorkInProgress())
	})
}

func TestControlSet_State(t *testing.T) {
	cs := newControlSet(t, "cs1", true, false)
	assert.Equal(t, threat.ControlSetState{URI: "cs1", Proposed: true}, cs.State())
}
