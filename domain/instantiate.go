package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/ident"
	"github.com/Spyderisk/system-modeller-sub004/matcher"
	"github.com/Spyderisk/system-modeller-sub004/threat"
)

var (
	// ErrPatternMismatch is returned when a match was found by a different
	// pattern than the threat definition names.
	ErrPatternMismatch = errors.New("match is not of the threat's pattern")

	// ErrUnknownControl is returned when a control strategy names a control
	// the domain model does not define.
	ErrUnknownControl = errors.New("unknown control")
)

// Instantiator builds threat model entities from pattern matches.
type Instantiator struct {
	model  *Model
	gen    *ident.Generator
	logger *slog.Logger
}

// NewInstantiator creates an Instantiator for m. A nil generator selects
// ident.DefaultNamespace and a nil logger selects slog.Default().
func NewInstantiator(m *Model, gen *ident.Generator, logger *slog.Logger) *Instantiator {
	if gen == nil {
		gen = ident.NewGenerator("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Instantiator{model: m, gen: gen, logger: logger}
}

// Instantiate adds the threat def found at match to into, together with its
// misbehaviour sets, control sets and control strategies.
//
// Entities already in into are reused, so instantiating the same match twice
// returns the existing threat and reports added as false. Effects, causes and
// optional control sets at unbound roles are left out. A control strategy is
// left out entirely when one of its mandatory roles is unbound. On error into
// is left unchanged.
func (in *Instantiator) Instantiate(def ThreatDefinition, match matcher.Match, g *assetgraph.Graph, into *threat.Model) (t *threat.Threat, added bool, err error) {
	if match.Pattern != def.Pattern {
		return nil, false, fmt.Errorf("%w: threat %s wants %s, got %s", ErrPatternMismatch, def.ID, def.Pattern, match.Pattern)
	}

	uri := in.gen.Threat(def.ID, match.Bindings)
	if existing, ok := into.Threat(uri); ok {
		return existing, false, nil
	}

	t = threat.New(uri, def.ID, def.ThreatKind())
	t.Label = in.label(def, match, g)
	t.Description = def.Description
	t.Category = def.Category
	t.Pattern = threat.PatternMatch{Pattern: match.Pattern, Bindings: copyBindings(match.Bindings)}
	if asset, ok := match.Asset(def.Threatens); ok {
		t.ThreatensAssets.Add(asset)
	}
	if def.Frequency != "" {
		t.Frequency, _ = in.model.Levels.Likelihood.Lookup(def.Frequency)
	}

	st := &staging{into: into, pending: threat.NewModel()}
	for _, e := range def.Effects {
		if ms := in.misbehaviourSet(e, match, g, st); ms != nil {
			t.Misbehaviours.Add(ms.URI)
		}
	}
	for _, e := range def.Causes {
		if ms := in.misbehaviourSet(e, match, g, st); ms != nil {
			t.SecondaryEffectConditions.Add(ms.URI)
		}
	}

	for _, sd := range def.ControlStrategies {
		csg, err := in.controlStrategy(sd, t, match, st)
		if err != nil {
			return nil, false, err
		}
		if csg != nil {
			t.AddControlStrategy(csg)
		}
	}

	st.commit()
	t, _ = into.AddThreat(t)
	return t, true, nil
}

// staging collects the entities created for one threat. Lookups see into
// first; new entities go to pending until commit.
type staging struct {
	into    *threat.Model
	pending *threat.Model
}

func (s *staging) misbehaviourSet(uri string) (*threat.MisbehaviourSet, bool) {
	if ms, ok := s.into.MisbehaviourSet(uri); ok {
		return ms, true
	}
	return s.pending.MisbehaviourSet(uri)
}

func (s *staging) controlSet(uri string) (*threat.ControlSet, bool) {
	if cs, ok := s.into.ControlSet(uri); ok {
		return cs, true
	}
	return s.pending.ControlSet(uri)
}

func (s *staging) controlStrategy(uri string) (*threat.ControlStrategy, bool) {
	if csg, ok := s.into.ControlStrategy(uri); ok {
		return csg, true
	}
	return s.pending.ControlStrategy(uri)
}

func (s *staging) commit() {
	for _, ms := range s.pending.MisbehaviourSets() {
		s.into.AddMisbehaviourSet(ms)
	}
	for _, cs := range s.pending.ControlSets() {
		s.into.AddControlSet(cs)
	}
	for _, csg := range s.pending.ControlStrategies() {
		s.into.AddControlStrategy(csg)
	}
}

func (in *Instantiator) label(def ThreatDefinition, match matcher.Match, g *assetgraph.Graph) string {
	base := def.Label
	if base == "" {
		base = ident.LocalName(def.ID)
	}
	var parts []string
	for _, role := range match.Roles() {
		id := match.Bindings[role]
		if n, ok := g.Node(id); ok && n.Label != "" {
			id = n.Label
		}
		parts = append(parts, id)
	}
	return base + " (" + strings.Join(parts, "-") + ")"
}

func (in *Instantiator) misbehaviourSet(e RoleEntity, match matcher.Match, g *assetgraph.Graph, st *staging) *threat.MisbehaviourSet {
	asset, ok := match.Asset(e.Role)
	if !ok {
		return nil
	}
	uri := in.gen.MisbehaviourSet(e.ID, asset)
	if existing, ok := st.misbehaviourSet(uri); ok {
		return existing
	}

	ms := threat.NewMisbehaviourSet(uri, e.ID, asset)
	if n, ok := g.Node(asset); ok {
		ms.AssetLabel = n.Label
	}
	if mb, ok := in.model.Misbehaviour(e.ID); ok && mb.Impact != "" {
		ms.ImpactLevel, _ = in.model.Levels.Impact.Lookup(mb.Impact)
	}
	st.pending.AddMisbehaviourSet(ms)
	return ms
}

func (in *Instantiator) controlStrategy(sd StrategyDefinition, t *threat.Threat, match matcher.Match, st *staging) (*threat.ControlStrategy, error) {
	for _, e := range sd.Mandatory {
		if _, ok := match.Asset(e.Role); !ok {
			in.logger.Debug("skipping control strategy with unbound mandatory role",
				"strategy", sd.ID,
				"threat", t.URI,
				"role", e.Role,
			)
			return nil, nil
		}
	}

	uri := in.gen.ControlStrategy(sd.ID, t.URI)
	if existing, ok := st.controlStrategy(uri); ok {
		return existing, nil
	}

	csg := threat.NewControlStrategy(uri, sd.ID)
	csg.Label = sd.Label
	csg.Description = sd.Description
	if sd.BlockingEffect != "" {
		csg.BlockingEffect, _ = in.model.Levels.Trustworthiness.Lookup(sd.BlockingEffect)
	}
	csg.SetType(t.URI, sd.Type)

	for _, e := range sd.Mandatory {
		cs, err := in.controlSet(e, match, st)
		if err != nil {
			return nil, err
		}
		csg.AddMandatory(cs)
	}
	for _, e := range sd.Optional {
		if _, ok := match.Asset(e.Role); !ok {
			continue
		}
		cs, err := in.controlSet(e, match, st)
		if err != nil {
			return nil, err
		}
		csg.AddOptional(cs)
	}

	st.pending.AddControlStrategy(csg)
	return csg, nil
}

func (in *Instantiator) controlSet(e RoleEntity, match matcher.Match, st *staging) (*threat.ControlSet, error) {
	asset, _ := match.Asset(e.Role)
	uri := in.gen.ControlSet(e.ID, asset)
	if existing, ok := st.controlSet(uri); ok {
		return existing, nil
	}

	ctrl, ok := in.model.Control(e.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrUnknownControl, e.ID, asset)
	}
	cs, err := threat.NewControlSet(threat.ControlSetSpec{
		URI:        uri,
		Control:    e.ID,
		AssetURI:   asset,
		AssetID:    asset,
		Assertable: ctrl.Assertable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create control set %s: %w", uri, err)
	}
	st.pending.AddControlSet(cs)
	return cs, nil
}

func copyBindings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
