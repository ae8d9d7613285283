package threat

import "sort"

// Level is one step of an ordered domain scale such as impact, likelihood,
// risk, trustworthiness or control coverage.
type Level struct {
	// ID is the level identifier in the domain model (e.g., "RiskLevelHigh").
	ID string `json:"id" yaml:"id"`

	// Label is the display name (e.g., "High").
	Label string `json:"label" yaml:"label"`

	// Value orders levels within a scale. Higher is more severe.
	Value int `json:"value" yaml:"value"`
}

// IsZero reports whether the level is unset.
func (l Level) IsZero() bool { return l.ID == "" }

// Compare orders two levels by value.
// Returns:
//   - negative if l < other
//   - zero if l == other
//   - positive if l > other
func (l Level) Compare(other Level) int {
	return l.Value - other.Value
}

// String returns the label, or the ID when no label is set.
func (l Level) String() string {
	if l.Label != "" {
		return l.Label
	}
	return l.ID
}

// Scale is an ordered set of levels.
type Scale []Level

// Sorted returns the levels in ascending value order.
func (s Scale) Sorted() Scale {
	out := append(Scale(nil), s...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// Lookup returns the level with the given ID.
func (s Scale) Lookup(id string) (Level, bool) {
	for _, l := range s {
		if l.ID == id {
			return l, true
		}
	}
	return Level{}, false
}

// Highest returns the most severe level of the scale.
func (s Scale) Highest() (Level, bool) {
	if len(s) == 0 {
		return Level{}, false
	}
	sorted := s.Sorted()
	return sorted[len(sorted)-1], true
}

// Lowest returns the least severe level of the scale.
func (s Scale) Lowest() (Level, bool) {
	if len(s) == 0 {
		return Level{}, false
	}
	return s.Sorted()[0], true
}
