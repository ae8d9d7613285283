package threat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RiskVector counts misbehaviour sets per risk level. Two systems are
// compared by their counts from the highest level down.
type RiskVector struct {
	scale  Scale
	counts map[string]int
}

// NewRiskVector tallies the risk level of each misbehaviour set against
// scale. Sets whose risk level is unset or not on the scale are skipped.
func NewRiskVector(scale Scale, msets []*MisbehaviourSet) RiskVector {
	rv := RiskVector{scale: scale.Sorted(), counts: make(map[string]int, len(scale))}
	for _, l := range rv.scale {
		rv.counts[l.ID] = 0
	}
	for _, ms := range msets {
		if _, ok := rv.counts[ms.RiskLevel.ID]; ok {
			rv.counts[ms.RiskLevel.ID]++
		}
	}
	return rv
}

// Count returns the number of misbehaviour sets at the level with the given ID.
func (rv RiskVector) Count(levelID string) int { return rv.counts[levelID] }

// Total returns the number of misbehaviour sets counted.
func (rv RiskVector) Total() int {
	n := 0
	for _, c := range rv.counts {
		n += c
	}
	return n
}

// Highest returns the most severe level with a non-zero count.
func (rv RiskVector) Highest() (Level, bool) {
	for i := len(rv.scale) - 1; i >= 0; i-- {
		if rv.counts[rv.scale[i].ID] > 0 {
			return rv.scale[i], true
		}
	}
	return Level{}, false
}

// Compare orders two vectors over the same scale: the one with more sets at
// the highest level where they differ is the greater.
func (rv RiskVector) Compare(other RiskVector) int {
	for i := len(rv.scale) - 1; i >= 0; i-- {
		id := rv.scale[i].ID
		if d := rv.counts[id] - other.counts[id]; d != 0 {
			return d
		}
	}
	return 0
}

// String renders the vector as "Label:count" pairs from the highest level down.
func (rv RiskVector) String() string {
	parts := make([]string, 0, len(rv.scale))
	for i := len(rv.scale) - 1; i >= 0; i-- {
		l := rv.scale[i]
		parts = append(parts, fmt.Sprintf("%s:%d", l, rv.counts[l.ID]))
	}
	return strings.Join(parts, " ")
}

type riskVectorEntry struct {
	Level Level `json:"level"`
	Count int   `json:"count"`
}

// MarshalJSON implements json.Marshaler.
func (rv RiskVector) MarshalJSON() ([]byte, error) {
	entries := make([]riskVectorEntry, 0, len(rv.scale))
	for _, l := range rv.scale {
		entries = append(entries, riskVectorEntry{Level: l, Count: rv.counts[l.ID]})
	}
	return json.Marshal(entries)
}

// UnmarshalJSON implements json.Unmarshaler.
func (rv *RiskVector) UnmarshalJSON(data []byte) error {
	var entries []riskVectorEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	scale := make(Scale, 0, len(entries))
	counts := make(map[string]int, len(entries))
	for _, e := range entries {
		scale = append(scale, e.Level)
		counts[e.Level.ID] = e.Count
	}
	rv.scale = scale.Sorted()
	rv.counts = counts
	return nil
}
