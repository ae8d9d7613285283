package domain

import (
	"sort"

	"github.com/Spyderisk/system-modeller-sub004/pattern"
	"github.com/Spyderisk/system-modeller-sub004/threat"
)

// Model is a complete domain model.
type Model struct {
	// Name identifies the domain (e.g., "network").
	Name string `yaml:"name" json:"name" validate:"required"`

	// Version distinguishes revisions of the same domain.
	Version string `yaml:"version" json:"version" validate:"required"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	AssetTypes    []AssetType          `yaml:"asset_types" json:"asset_types" validate:"required,min=1,dive"`
	Roles         []RoleAssignment     `yaml:"roles" json:"roles" validate:"dive"`
	Levels        Levels               `yaml:"levels" json:"levels"`
	RiskMatrix    []RiskEntry          `yaml:"risk_matrix,omitempty" json:"risk_matrix,omitempty" validate:"dive"`
	Misbehaviours []Misbehaviour       `yaml:"misbehaviours" json:"misbehaviours" validate:"dive"`
	Controls      []Control            `yaml:"controls" json:"controls" validate:"dive"`
	Patterns      []pattern.Definition `yaml:"patterns" json:"patterns"`
	Threats       []ThreatDefinition   `yaml:"threats" json:"threats" validate:"dive"`
}

// AssetType is a node of the asset type hierarchy. An asset of a type also
// counts as an asset of every ancestor type.
type AssetType struct {
	ID      string   `yaml:"id" json:"id" validate:"required"`
	Label   string   `yaml:"label,omitempty" json:"label,omitempty"`
	Parents []string `yaml:"parents,omitempty" json:"parents,omitempty"`
}

// RoleAssignment lists the asset types that qualify for a role.
type RoleAssignment struct {
	Role  string   `yaml:"role" json:"role" validate:"required"`
	Types []string `yaml:"types" json:"types" validate:"required,min=1"`
}

// Levels holds the ordered scales of the domain.
type Levels struct {
	Impact          threat.Scale `yaml:"impact,omitempty" json:"impact,omitempty"`
	Likelihood      threat.Scale `yaml:"likelihood,omitempty" json:"likelihood,omitempty"`
	Risk            threat.Scale `yaml:"risk,omitempty" json:"risk,omitempty"`
	Trustworthiness threat.Scale `yaml:"trustworthiness,omitempty" json:"trustworthiness,omitempty"`
	Coverage        threat.Scale `yaml:"coverage,omitempty" json:"coverage,omitempty"`
}

// RiskEntry is one cell of the risk lookup table.
type RiskEntry struct {
	Impact     string `yaml:"impact" json:"impact" validate:"required"`
	Likelihood string `yaml:"likelihood" json:"likelihood" validate:"required"`
	Risk       string `yaml:"risk" json:"risk" validate:"required"`
}

// Misbehaviour is a kind of harm an asset can suffer.
type Misbehaviour struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Label       string `yaml:"label,omitempty" json:"label,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Impact is the default impact level ID, used until one is asserted.
	Impact string `yaml:"impact,omitempty" json:"impact,omitempty"`
}

// Control is a kind of security measure that can be placed at an asset.
type Control struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Label       string `yaml:"label,omitempty" json:"label,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Assertable  bool   `yaml:"assertable,omitempty" json:"assertable,omitempty"`
}

// RoleEntity places a misbehaviour or control at the asset bound to a role.
type RoleEntity struct {
	Role string `yaml:"role" json:"role" validate:"required"`
	ID   string `yaml:"id" json:"id" validate:"required"`
}

// ThreatDefinition describes a threat found wherever its pattern matches.
type ThreatDefinition struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Label       string `yaml:"label,omitempty" json:"label,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Pattern names the pattern the threat is found by.
	Pattern string `yaml:"pattern" json:"pattern" validate:"required"`

	// Threatens is the pattern role of the asset the threat is directed at.
	// Searches are anchored at each asset qualifying for it.
	Threatens string `yaml:"threatens" json:"threatens" validate:"required"`

	Kind     threat.Kind `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=threat compliance"`
	Category string      `yaml:"category,omitempty" json:"category,omitempty"`

	// Frequency is a likelihood level ID.
	Frequency string `yaml:"frequency,omitempty" json:"frequency,omitempty"`

	// Effects are the misbehaviours the threat causes.
	Effects []RoleEntity `yaml:"effects,omitempty" json:"effects,omitempty" validate:"dive"`

	// Causes are the misbehaviours that make the threat a secondary effect.
	Causes []RoleEntity `yaml:"causes,omitempty" json:"causes,omitempty" validate:"dive"`

	ControlStrategies []StrategyDefinition `yaml:"control_strategies,omitempty" json:"control_strategies,omitempty" validate:"dive"`
}

// ThreatKind returns the kind, defaulting to a standard threat.
func (d ThreatDefinition) ThreatKind() threat.Kind {
	if d.Kind == "" {
		return threat.KindThreat
	}
	return d.Kind
}

// StrategyDefinition describes a control strategy of a threat.
type StrategyDefinition struct {
	ID          string              `yaml:"id" json:"id" validate:"required"`
	Label       string              `yaml:"label,omitempty" json:"label,omitempty"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Type        threat.StrategyType `yaml:"type" json:"type" validate:"required,oneof=BLOCK MITIGATE TRIGGER"`

	// BlockingEffect is a trustworthiness level ID.
	BlockingEffect string `yaml:"blocking_effect,omitempty" json:"blocking_effect,omitempty"`

	Mandatory []RoleEntity `yaml:"mandatory,omitempty" json:"mandatory,omitempty" validate:"dive"`
	Optional  []RoleEntity `yaml:"optional,omitempty" json:"optional,omitempty" validate:"dive"`
}

// Key identifies the model in caches and catalogs as "name@version".
func (m *Model) Key() string { return m.Name + "@" + m.Version }

// Pattern returns the pattern definition with the given name.
func (m *Model) Pattern(name string) (pattern.Definition, bool) {
	for _, p := range m.Patterns {
		if p.Name == name {
			return p, true
		}
	}
	return pattern.Definition{}, false
}

// Misbehaviour returns the misbehaviour with the given ID.
func (m *Model) Misbehaviour(id string) (Misbehaviour, bool) {
	for _, mb := range m.Misbehaviours {
		if mb.ID == id {
			return mb, true
		}
	}
	return Misbehaviour{}, false
}

// Control returns the control with the given ID.
func (m *Model) Control(id string) (Control, bool) {
	for _, c := range m.Controls {
		if c.ID == id {
			return c, true
		}
	}
	return Control{}, false
}

// Threat returns the threat definition with the given ID.
func (m *Model) Threat(id string) (ThreatDefinition, bool) {
	for _, t := range m.Threats {
		if t.ID == id {
			return t, true
		}
	}
	return ThreatDefinition{}, false
}

// Risk looks up the risk level for an impact and likelihood in the risk
// matrix.
func (m *Model) Risk(impact, likelihood threat.Level) (threat.Level, bool) {
	for _, e := range m.RiskMatrix {
		if e.Impact == impact.ID && e.Likelihood == likelihood.ID {
			return m.Levels.Risk.Lookup(e.Risk)
		}
	}
	return threat.Level{}, false
}

// TypeClosure returns typeID and all of its ancestor types, sorted.
// Unknown types yield just themselves.
func (m *Model) TypeClosure(typeID string) []string {
	parents := make(map[string][]string, len(m.AssetTypes))
	for _, t := range m.AssetTypes {
		parents[t.ID] = t.Parents
	}

	seen := map[string]bool{typeID: true}
	queue := []string{typeID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range parents[cur] {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
