package threat

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownEntity is returned when a reference names an entity that is not
// part of the model.
var ErrUnknownEntity = errors.New("unknown entity")

// Model holds the threats, misbehaviour sets, control sets and control
// strategies instantiated for one system model. Entities are keyed by URI
// and added once; adding an entity whose URI is already present returns the
// existing instance so that shared control sets and misbehaviour sets stay
// single objects.
//
// A Model is not safe for concurrent mutation.
type Model struct {
	threats    map[string]*Threat
	msets      map[string]*MisbehaviourSet
	csets      map[string]*ControlSet
	strategies map[string]*ControlStrategy
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		threats:    make(map[string]*Threat),
		msets:      make(map[string]*MisbehaviourSet),
		csets:      make(map[string]*ControlSet),
		strategies: make(map[string]*ControlStrategy),
	}
}

// AddThreat adds t unless a threat with the same URI exists. It returns the
// instance held by the model and whether t was added.
func (m *Model) AddThreat(t *Threat) (*Threat, bool) {
	if existing, ok := m.threats[t.URI]; ok {
		return existing, false
	}
	m.threats[t.URI] = t
	return t, true
}

// AddMisbehaviourSet adds ms unless one with the same URI exists.
func (m *Model) AddMisbehaviourSet(ms *MisbehaviourSet) (*MisbehaviourSet, bool) {
	if existing, ok := m.msets[ms.URI]; ok {
		return existing, false
	}
	m.msets[ms.URI] = ms
	return ms, true
}

// AddControlSet adds cs unless one with the same URI exists.
func (m *Model) AddControlSet(cs *ControlSet) (*ControlSet, bool) {
	if existing, ok := m.csets[cs.URI]; ok {
		return existing, false
	}
	m.csets[cs.URI] = cs
	return cs, true
}

// AddControlStrategy adds csg unless one with the same URI exists.
func (m *Model) AddControlStrategy(csg *ControlStrategy) (*ControlStrategy, bool) {
	if existing, ok := m.strategies[csg.URI]; ok {
		return existing, false
	}
	m.strategies[csg.URI] = csg
	return csg, true
}

// Threat returns the threat with the given URI.
func (m *Model) Threat(uri string) (*Threat, bool) {
	t, ok := m.threats[uri]
	return t, ok
}

// MisbehaviourSet returns the misbehaviour set with the given URI.
func (m *Model) MisbehaviourSet(uri string) (*MisbehaviourSet, bool) {
	ms, ok := m.msets[uri]
	return ms, ok
}

// ControlSet returns the control set with the given URI.
func (m *Model) ControlSet(uri string) (*ControlSet, bool) {
	cs, ok := m.csets[uri]
	return cs, ok
}

// ControlStrategy returns the control strategy with the given URI.
func (m *Model) ControlStrategy(uri string) (*ControlStrategy, bool) {
	csg, ok := m.strategies[uri]
	return csg, ok
}

// Threats returns all threats sorted by URI.
func (m *Model) Threats() []*Threat {
	out := make([]*Threat, 0, len(m.threats))
	for _, t := range m.threats {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// MisbehaviourSets returns all misbehaviour sets sorted by URI.
func (m *Model) MisbehaviourSets() []*MisbehaviourSet {
	out := make([]*MisbehaviourSet, 0, len(m.msets))
	for _, ms := range m.msets {
		out = append(out, ms)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// ControlSets returns all control sets sorted by URI.
func (m *Model) ControlSets() []*ControlSet {
	return sortedControlSets(m.csets)
}

// ControlStrategies returns all control strategies sorted by URI.
func (m *Model) ControlStrategies() []*ControlStrategy {
	out := make([]*ControlStrategy, 0, len(m.strategies))
	for _, csg := range m.strategies {
		out = append(out, csg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Unresolved returns the threats that are neither accepted nor addressed by
// an enabled blocking or mitigating strategy, sorted by URI.
func (m *Model) Unresolved() []*Threat {
	var out []*Threat
	for _, t := range m.Threats() {
		if !t.IsResolved() {
			out = append(out, t)
		}
	}
	return out
}

// ApplyStates sets the proposed and work in progress flags of the listed
// control sets. States naming unknown control sets are skipped. Every state
// is attempted; the returned error joins the failures, and a failed control
// set keeps its previous state.
func (m *Model) ApplyStates(states []ControlSetState) (applied int, err error) {
	var errs []error
	for _, s := range states {
		cs, ok := m.csets[s.URI]
		if !ok {
			continue
		}
		if e := cs.SetState(s.Proposed, s.WorkInProgress); e != nil {
			errs = append(errs, e)
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

// States returns the state of every control set, sorted by URI.
func (m *Model) States() []ControlSetState {
	out := make([]ControlSetState, 0, len(m.csets))
	for _, cs := range m.ControlSets() {
		out = append(out, cs.State())
	}
	return out
}

type strategyJSON struct {
	URI            string                  `json:"uri"`
	Parent         string                  `json:"parent"`
	Label          string                  `json:"label,omitempty"`
	Description    string                  `json:"description,omitempty"`
	BlockingEffect Level                   `json:"blocking_effect"`
	Mandatory      []string                `json:"mandatory_control_sets"`
	Optional       []string                `json:"optional_control_sets"`
	Types          map[string]StrategyType `json:"types"`
}

type threatJSON struct {
	URI                       string       `json:"uri"`
	Parent                    string       `json:"parent"`
	Label                     string       `json:"label,omitempty"`
	Description               string       `json:"description,omitempty"`
	Kind                      Kind         `json:"kind"`
	Category                  string       `json:"category,omitempty"`
	Pattern                   PatternMatch `json:"pattern"`
	ThreatensAssets           URISet       `json:"threatens_assets"`
	Misbehaviours             URISet       `json:"misbehaviours"`
	SecondaryEffectConditions URISet       `json:"secondary_effect_conditions"`
	Frequency                 Level        `json:"frequency"`
	Likelihood                Level        `json:"likelihood"`
	Risk                      Level        `json:"risk"`
	ControlStrategies         []string     `json:"control_strategies"`
	AcceptanceJustification   *string      `json:"acceptance_justification,omitempty"`
	Resolved                  bool         `json:"resolved"`
}

type modelJSON struct {
	Threats           []threatJSON       `json:"threats"`
	MisbehaviourSets  []*MisbehaviourSet `json:"misbehaviour_sets"`
	ControlSets       []*ControlSet      `json:"control_sets"`
	ControlStrategies []strategyJSON     `json:"control_strategies"`
}

// MarshalJSON implements json.Marshaler. Entities refer to each other by URI.
// The resolved flag of each threat is written for readers but ignored on
// decoding.
func (m *Model) MarshalJSON() ([]byte, error) {
	out := modelJSON{
		MisbehaviourSets: m.MisbehaviourSets(),
		ControlSets:      m.ControlSets(),
	}
	for _, csg := range m.ControlStrategies() {
		sj := strategyJSON{
			URI:            csg.URI,
			Parent:         csg.Parent,
			Label:          csg.Label,
			Description:    csg.Description,
			BlockingEffect: csg.BlockingEffect,
			Mandatory:      make([]string, 0, len(csg.mandatory)),
			Optional:       make([]string, 0, len(csg.optional)),
			Types:          make(map[string]StrategyType, len(csg.types)),
		}
		for _, cs := range csg.MandatoryControlSets() {
			sj.Mandatory = append(sj.Mandatory, cs.URI)
		}
		for _, cs := range csg.OptionalControlSets() {
			sj.Optional = append(sj.Optional, cs.URI)
		}
		for uri, t := range csg.types {
			sj.Types[uri] = t
		}
		out.ControlStrategies = append(out.ControlStrategies, sj)
	}
	for _, t := range m.Threats() {
		tj := threatJSON{
			URI:                       t.URI,
			Parent:                    t.Parent,
			Label:                     t.Label,
			Description:               t.Description,
			Kind:                      t.Kind,
			Category:                  t.Category,
			Pattern:                   t.Pattern,
			ThreatensAssets:           t.ThreatensAssets,
			Misbehaviours:             t.Misbehaviours,
			SecondaryEffectConditions: t.SecondaryEffectConditions,
			Frequency:                 t.Frequency,
			Likelihood:                t.Likelihood,
			Risk:                      t.Risk,
			ControlStrategies:         make([]string, 0, len(t.strategies)),
			AcceptanceJustification:   t.acceptance,
			Resolved:                  t.IsResolved(),
		}
		for _, csg := range t.ControlStrategies() {
			tj.ControlStrategies = append(tj.ControlStrategies, csg.URI)
		}
		out.Threats = append(out.Threats, tj)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. It rebuilds the shared object
// graph and fails on references to unknown entities or on control sets that
// violate their invariant.
func (m *Model) UnmarshalJSON(data []byte) error {
	var in modelJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	next := NewModel()
	for _, cs := range in.ControlSets {
		if cs == nil {
			continue
		}
		next.AddControlSet(cs)
	}
	for _, ms := range in.MisbehaviourSets {
		if ms == nil {
			continue
		}
		ensureSets(ms)
		next.AddMisbehaviourSet(ms)
	}
	for _, sj := range in.ControlStrategies {
		csg := NewControlStrategy(sj.URI, sj.Parent)
		csg.Label = sj.Label
		csg.Description = sj.Description
		csg.BlockingEffect = sj.BlockingEffect
		for _, uri := range sj.Mandatory {
			cs, ok := next.csets[uri]
			if !ok {
				return fmt.Errorf("%w: control set %s in strategy %s", ErrUnknownEntity, uri, sj.URI)
			}
			csg.AddMandatory(cs)
		}
		for _, uri := range sj.Optional {
			cs, ok := next.csets[uri]
			if !ok {
				return fmt.Errorf("%w: control set %s in strategy %s", ErrUnknownEntity, uri, sj.URI)
			}
			csg.AddOptional(cs)
		}
		for uri, st := range sj.Types {
			csg.SetType(uri, st)
		}
		next.AddControlStrategy(csg)
	}
	for _, tj := range in.Threats {
		if !tj.Kind.IsValid() {
			return fmt.Errorf("threat %s: invalid kind %q", tj.URI, tj.Kind)
		}
		t := New(tj.URI, tj.Parent, tj.Kind)
		t.Label = tj.Label
		t.Description = tj.Description
		t.Category = tj.Category
		t.Pattern = tj.Pattern
		t.ThreatensAssets.AddAll(tj.ThreatensAssets)
		t.Misbehaviours.AddAll(tj.Misbehaviours)
		t.SecondaryEffectConditions.AddAll(tj.SecondaryEffectConditions)
		t.Frequency = tj.Frequency
		t.Likelihood = tj.Likelihood
		t.Risk = tj.Risk
		if tj.Kind != KindCompliance {
			t.acceptance = tj.AcceptanceJustification
		}
		for _, uri := range tj.ControlStrategies {
			csg, ok := next.strategies[uri]
			if !ok {
				return fmt.Errorf("%w: control strategy %s in threat %s", ErrUnknownEntity, uri, tj.URI)
			}
			t.AddControlStrategy(csg)
		}
		next.AddThreat(t)
	}

	*m = *next
	return nil
}

func ensureSets(ms *MisbehaviourSet) {
	if ms.DirectCauses == nil {
		ms.DirectCauses = NewURISet()
	}
	if ms.IndirectCauses == nil {
		ms.IndirectCauses = NewURISet()
	}
	if ms.RootCauses == nil {
		ms.RootCauses = NewURISet()
	}
	if ms.DirectEffects == nil {
		ms.DirectEffects = NewURISet()
	}
}
