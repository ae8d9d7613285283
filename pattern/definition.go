package pattern

// Presence is the cardinality policy of a template role.
type Presence string

const (
	// Mandatory roles must be bound in every accepted match. This is the default.
	Mandatory Presence = "mandatory"

	// Optional roles are bound when a consistent asset exists and dropped otherwise.
	Optional Presence = "optional"

	// Necessary roles behave like optional roles during the search, but the
	// presence policy decides whether the match counts when they are unbound.
	Necessary Presence = "necessary"
)

// IsValid reports whether p is a known presence value. The empty value is
// accepted and treated as Mandatory.
func (p Presence) IsValid() bool {
	switch p {
	case "", Mandatory, Optional, Necessary:
		return true
	default:
		return false
	}
}

// RoleDefinition declares one role slot of a pattern.
type RoleDefinition struct {
	// Name is the domain role label. Assets qualify for the slot when they
	// carry this role.
	Name string `yaml:"name" json:"name"`

	// Presence is the cardinality policy. Empty means mandatory.
	Presence Presence `yaml:"presence,omitempty" json:"presence,omitempty"`

	// Filter is an optional CEL expression over the candidate asset that
	// must evaluate to true, e.g. `asset.attributes.zone == "dmz"`.
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// LinkDefinition is a directed, typed edge between two roles.
type LinkDefinition struct {
	From string `yaml:"from" json:"from"`
	Type string `yaml:"type" json:"type"`
	To   string `yaml:"to" json:"to"`
}

// ProhibitedNodeDefinition names an extra role whose presence, linked to the
// template roles as described, invalidates a match.
type ProhibitedNodeDefinition struct {
	// Role is the domain role an offending asset must carry. It must not be
	// one of the template's own roles.
	Role string `yaml:"role" json:"role"`

	// Links connect Role with template roles. Each link has Role at exactly
	// one end.
	Links []LinkDefinition `yaml:"links" json:"links"`
}

// MatchLinkDefinition requires the assets bound to Role and Other to have the
// same set of forward targets for relation Type.
type MatchLinkDefinition struct {
	Role  string `yaml:"role" json:"role"`
	Other string `yaml:"other" json:"other"`
	Type  string `yaml:"type" json:"type"`
}

// GroupDefinition is a named set of roles.
type GroupDefinition struct {
	Name  string   `yaml:"name" json:"name"`
	Roles []string `yaml:"roles" json:"roles"`
}

// Definition is the serialisable form of a pattern. It is compiled into an
// immutable Template with Compile.
type Definition struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Roles            []RoleDefinition           `yaml:"roles" json:"roles"`
	Links            []LinkDefinition           `yaml:"links,omitempty" json:"links,omitempty"`
	ProhibitedLinks  []LinkDefinition           `yaml:"prohibited_links,omitempty" json:"prohibited_links,omitempty"`
	ProhibitedNodes  []ProhibitedNodeDefinition `yaml:"prohibited_nodes,omitempty" json:"prohibited_nodes,omitempty"`
	MatchLinks       []MatchLinkDefinition      `yaml:"match_links,omitempty" json:"match_links,omitempty"`
	DistinctGroups   []GroupDefinition          `yaml:"distinct_groups,omitempty" json:"distinct_groups,omitempty"`
	SufficientGroups []GroupDefinition          `yaml:"sufficient_groups,omitempty" json:"sufficient_groups,omitempty"`
}
