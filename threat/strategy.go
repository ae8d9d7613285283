package threat

import (
	"fmt"
	"sort"
)

// StrategyType classifies what a control strategy does to a particular threat.
type StrategyType string

const (
	// StrategyBlock prevents the threat.
	StrategyBlock StrategyType = "BLOCK"

	// StrategyMitigate reduces the threat's likelihood.
	StrategyMitigate StrategyType = "MITIGATE"

	// StrategyTrigger makes the threat possible or more likely. It never
	// resolves the threat.
	StrategyTrigger StrategyType = "TRIGGER"
)

// IsValid returns true if the strategy type is valid.
func (s StrategyType) IsValid() bool {
	switch s {
	case StrategyBlock, StrategyMitigate, StrategyTrigger:
		return true
	default:
		return false
	}
}

// String returns the string representation of the strategy type.
func (s StrategyType) String() string { return string(s) }

// ParseStrategyType parses a string into a StrategyType value.
func ParseStrategyType(s string) (StrategyType, error) {
	t := StrategyType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid strategy type: %s", s)
	}
	return t, nil
}

// ControlStrategy is a combination of control sets that together address
// one or more threats.
//
// A strategy is enabled when it has no mandatory control sets or when every
// mandatory control set is proposed. Optional control sets never affect
// enablement. Control sets are shared by pointer with every other strategy
// that uses them.
type ControlStrategy struct {
	URI         string
	Parent      string
	Label       string
	Description string

	// BlockingEffect is how strongly the strategy reduces a threat's likelihood.
	BlockingEffect Level

	mandatory map[string]*ControlSet
	optional  map[string]*ControlSet
	types     map[string]StrategyType
}

// NewControlStrategy creates an empty strategy.
func NewControlStrategy(uri, parent string) *ControlStrategy {
	return &ControlStrategy{
		URI:       uri,
		Parent:    parent,
		mandatory: make(map[string]*ControlSet),
		optional:  make(map[string]*ControlSet),
		types:     make(map[string]StrategyType),
	}
}

// AddMandatory adds a control set that must be proposed for the strategy to
// be enabled.
func (c *ControlStrategy) AddMandatory(cs *ControlSet) {
	delete(c.optional, cs.URI)
	c.mandatory[cs.URI] = cs
}

// AddOptional adds a control set that the strategy may use. A control set
// already mandatory stays mandatory.
func (c *ControlStrategy) AddOptional(cs *ControlSet) {
	if _, ok := c.mandatory[cs.URI]; ok {
		return
	}
	c.optional[cs.URI] = cs
}

// MandatoryControlSets returns the mandatory control sets sorted by URI.
func (c *ControlStrategy) MandatoryControlSets() []*ControlSet {
	return sortedControlSets(c.mandatory)
}

// OptionalControlSets returns the optional control sets sorted by URI.
func (c *ControlStrategy) OptionalControlSets() []*ControlSet {
	return sortedControlSets(c.optional)
}

// SetType records how the strategy affects the threat with the given URI.
func (c *ControlStrategy) SetType(threatURI string, t StrategyType) {
	c.types[threatURI] = t
}

// Type returns how the strategy affects the threat with the given URI. It
// returns the empty type when the threat was never classified.
func (c *ControlStrategy) Type(threatURI string) StrategyType {
	return c.types[threatURI]
}

// Threats returns the URIs of the threats the strategy is classified for, sorted.
func (c *ControlStrategy) Threats() []string {
	out := make([]string, 0, len(c.types))
	for uri := range c.types {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// IsEnabled reports whether every mandatory control set is proposed.
func (c *ControlStrategy) IsEnabled() bool {
	for _, cs := range c.mandatory {
		if !cs.Proposed() {
			return false
		}
	}
	return true
}

// SetEnabled(true) proposes every control set of the strategy, mandatory and
// optional. SetEnabled(false) does nothing: the control sets may be shared
// with other strategies, so there is no single way to switch one off.
func (c *ControlStrategy) SetEnabled(enabled bool) {
	if !enabled {
		return
	}
	for _, cs := range c.mandatory {
		// Proposing never violates the control set invariant.
		_ = cs.SetProposed(true)
	}
	for _, cs := range c.optional {
		_ = cs.SetProposed(true)
	}
}

func sortedControlSets(m map[string]*ControlSet) []*ControlSet {
	out := make([]*ControlSet, 0, len(m))
	for _, cs := range m {
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}
