package threat

import (
	"fmt"
	"log/slog"
	"sort"
)

// Kind distinguishes ordinary threats from compliance threats.
type Kind string

const (
	// KindThreat is a threat that may be resolved by controls or accepted.
	KindThreat Kind = "threat"

	// KindCompliance is a compliance threat. It can only be resolved by
	// controls and never accepted.
	KindCompliance Kind = "compliance"
)

// IsValid returns true if the kind is valid.
func (k Kind) IsValid() bool {
	switch k {
	case KindThreat, KindCompliance:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind.
func (k Kind) String() string { return string(k) }

// ParseKind parses a string into a Kind value.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("invalid threat kind: %s", s)
	}
	return k, nil
}

// PatternMatch records which pattern a threat was found by and where.
type PatternMatch struct {
	Pattern  string            `json:"pattern"`
	Bindings map[string]string `json:"bindings"`
}

// Threat is a threat instantiated at one match of its domain pattern.
//
// Whether a threat is resolved is never stored. IsResolved derives it from
// the acceptance justification and the current state of the control sets.
type Threat struct {
	URI         string
	Parent      string
	Label       string
	Description string
	Kind        Kind

	// Category is the domain threat category (e.g., "Standard", "Modelling").
	Category string

	Pattern PatternMatch

	// ThreatensAssets holds the IDs of the assets the threat is directed at.
	ThreatensAssets URISet

	// Misbehaviours holds the misbehaviour sets the threat causes.
	Misbehaviours URISet

	// SecondaryEffectConditions holds the misbehaviour sets that make the
	// threat a secondary effect. Empty for primary threats.
	SecondaryEffectConditions URISet

	Frequency  Level
	Likelihood Level
	Risk       Level

	strategies map[string]*ControlStrategy
	acceptance *string
}

// New creates a threat with empty relations.
func New(uri, parent string, kind Kind) *Threat {
	return &Threat{
		URI:                       uri,
		Parent:                    parent,
		Kind:                      kind,
		ThreatensAssets:           NewURISet(),
		Misbehaviours:             NewURISet(),
		SecondaryEffectConditions: NewURISet(),
		strategies:                make(map[string]*ControlStrategy),
	}
}

// AddControlStrategy attaches a strategy to the threat.
func (t *Threat) AddControlStrategy(csg *ControlStrategy) {
	t.strategies[csg.URI] = csg
}

// ControlStrategy returns the attached strategy with the given URI.
func (t *Threat) ControlStrategy(uri string) (*ControlStrategy, bool) {
	csg, ok := t.strategies[uri]
	return csg, ok
}

// ControlStrategies returns the attached strategies sorted by URI.
func (t *Threat) ControlStrategies() []*ControlStrategy {
	out := make([]*ControlStrategy, 0, len(t.strategies))
	for _, csg := range t.strategies {
		out = append(out, csg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// AcceptanceJustification returns a copy of the acceptance justification,
// or nil when the threat has not been accepted.
func (t *Threat) AcceptanceJustification() *string {
	if t.acceptance == nil {
		return nil
	}
	s := *t.acceptance
	return &s
}

// SetAcceptanceJustification accepts the threat with the given reason, or
// clears the acceptance when text is nil. It reports whether the change was
// applied.
//
// Compliance threats cannot be accepted: the attempt is logged at warning
// level and discarded.
func (t *Threat) SetAcceptanceJustification(logger *slog.Logger, text *string) bool {
	if logger == nil {
		logger = slog.Default()
	}
	switch t.Kind {
	case KindCompliance:
		logger.Warn("ignoring acceptance justification on compliance threat",
			"threat", t.URI,
			"parent", t.Parent,
		)
		return false
	default:
		if text == nil {
			t.acceptance = nil
			return true
		}
		s := *text
		t.acceptance = &s
		return true
	}
}

// IsResolved reports whether the threat is accepted or addressed by an
// enabled strategy that blocks or mitigates it. Enabled TRIGGER strategies
// do not count.
func (t *Threat) IsResolved() bool {
	if t.acceptance != nil {
		return true
	}
	for _, csg := range t.strategies {
		if csg.Type(t.URI) != StrategyTrigger && csg.IsEnabled() {
			return true
		}
	}
	return false
}

// IsSecondaryEffect reports whether the threat is caused by other misbehaviours.
func (t *Threat) IsSecondaryEffect() bool {
	return t.SecondaryEffectConditions.Len() > 0
}
