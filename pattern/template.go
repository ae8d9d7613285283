package pattern

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
)

// ErrInvalidTemplate is returned by Compile for malformed definitions.
var ErrInvalidTemplate = errors.New("invalid pattern template")

// Role is a compiled template role.
type Role struct {
	Name     string
	Presence Presence
	Index    int
	Filter   string
}

// Mandatory reports whether the role must be bound in every match.
func (r Role) Mandatory() bool { return r.Presence == Mandatory }

// Link is a compiled role-to-role edge.
type Link struct {
	From string
	Type string
	To   string
}

// ProhibitedNode is a compiled prohibited node constraint.
type ProhibitedNode struct {
	Role  string
	Links []Link
}

// TemplateRoles returns the template roles the constraint refers to, sorted.
func (p ProhibitedNode) TemplateRoles() []string {
	seen := make(map[string]struct{})
	for _, l := range p.Links {
		if l.From != p.Role {
			seen[l.From] = struct{}{}
		}
		if l.To != p.Role {
			seen[l.To] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// MatchLink is a compiled equality constraint.
type MatchLink struct {
	Role  string
	Other string
	Type  string
}

// Group is a compiled named role set.
type Group struct {
	Name  string
	Roles []string
}

// Template is an immutable, compiled pattern. It is safe for concurrent use
// and is shared by every search run against the same domain-model version.
type Template struct {
	name        string
	description string

	roles   []Role
	byName  map[string]int
	filters map[string]*filter

	links    []Link
	outgoing map[string][]Link
	incoming map[string][]Link

	prohibitedLinks []Link
	prohibitedNodes []ProhibitedNode
	matchLinks      []MatchLink
	distinct        []Group
	sufficient      []Group

	policy PresencePolicy
}

// CompileOption configures Compile.
type CompileOption func(*compileConfig)

type compileConfig struct {
	policy PresencePolicy
}

// WithPresencePolicy sets how necessary roles and sufficient groups decide
// whether a match counts. The default is NecessaryOrSufficient.
func WithPresencePolicy(p PresencePolicy) CompileOption {
	return func(c *compileConfig) {
		c.policy = p
	}
}

// Compile validates def and builds an immutable Template.
//
// Example:
//
//	tmpl, err := pattern.Compile(pattern.Definition{
//	    Name:  "HostedProcess",
//	    Roles: []pattern.RoleDefinition{{Name: "Host"}, {Name: "Process"}},
//	    Links: []pattern.LinkDefinition{{From: "Host", Type: "hosts", To: "Process"}},
//	})
func Compile(def Definition, opts ...CompileOption) (*Template, error) {
	cfg := compileConfig{policy: NecessaryOrSufficient}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.policy == nil {
		cfg.policy = NecessaryOrSufficient
	}

	if def.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}
	if len(def.Roles) == 0 {
		return nil, fmt.Errorf("%w: pattern %s has no roles", ErrInvalidTemplate, def.Name)
	}

	t := &Template{
		name:        def.Name,
		description: def.Description,
		byName:      make(map[string]int, len(def.Roles)),
		filters:     make(map[string]*filter),
		outgoing:    make(map[string][]Link),
		incoming:    make(map[string][]Link),
		policy:      cfg.policy,
	}
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: pattern %s: %s", ErrInvalidTemplate, def.Name, fmt.Sprintf(format, args...))
	}

	for i, rd := range def.Roles {
		if rd.Name == "" {
			return nil, invalid("role %d has no name", i)
		}
		if _, dup := t.byName[rd.Name]; dup {
			return nil, invalid("duplicate role %s", rd.Name)
		}
		if !rd.Presence.IsValid() {
			return nil, invalid("role %s has unknown presence %q", rd.Name, rd.Presence)
		}
		presence := rd.Presence
		if presence == "" {
			presence = Mandatory
		}
		t.byName[rd.Name] = len(t.roles)
		t.roles = append(t.roles, Role{Name: rd.Name, Presence: presence, Index: len(t.roles), Filter: rd.Filter})
	}

	var needEnv bool
	for _, rd := range def.Roles {
		if rd.Filter != "" {
			needEnv = true
			break
		}
	}
	if needEnv {
		env, err := newFilterEnv()
		if err != nil {
			return nil, invalid("filter environment: %v", err)
		}
		for _, rd := range def.Roles {
			if rd.Filter == "" {
				continue
			}
			f, err := compileFilter(env, rd.Filter)
			if err != nil {
				return nil, invalid("role %s filter: %v", rd.Name, err)
			}
			t.filters[rd.Name] = f
		}
	}

	for _, ld := range def.Links {
		if err := t.checkLink(ld); err != nil {
			return nil, invalid("link: %v", err)
		}
		l := Link(ld)
		t.links = append(t.links, l)
		t.outgoing[l.From] = append(t.outgoing[l.From], l)
		t.incoming[l.To] = append(t.incoming[l.To], l)
	}

	for _, ld := range def.ProhibitedLinks {
		if err := t.checkLink(ld); err != nil {
			return nil, invalid("prohibited link: %v", err)
		}
		t.prohibitedLinks = append(t.prohibitedLinks, Link(ld))
	}

	for _, pd := range def.ProhibitedNodes {
		if pd.Role == "" {
			return nil, invalid("prohibited node has no role")
		}
		if t.HasRole(pd.Role) {
			return nil, invalid("prohibited node role %s is also a template role", pd.Role)
		}
		if len(pd.Links) == 0 {
			return nil, invalid("prohibited node %s has no links", pd.Role)
		}
		pn := ProhibitedNode{Role: pd.Role}
		for _, ld := range pd.Links {
			if ld.Type == "" {
				return nil, invalid("prohibited node %s: link has no type", pd.Role)
			}
			fromSelf, toSelf := ld.From == pd.Role, ld.To == pd.Role
			switch {
			case fromSelf && toSelf:
				return nil, invalid("prohibited node %s: self link", pd.Role)
			case fromSelf:
				if !t.HasRole(ld.To) {
					return nil, invalid("prohibited node %s: unknown role %s", pd.Role, ld.To)
				}
			case toSelf:
				if !t.HasRole(ld.From) {
					return nil, invalid("prohibited node %s: unknown role %s", pd.Role, ld.From)
				}
			default:
				return nil, invalid("prohibited node %s: link %s-%s-%s does not touch it", pd.Role, ld.From, ld.Type, ld.To)
			}
			pn.Links = append(pn.Links, Link(ld))
		}
		t.prohibitedNodes = append(t.prohibitedNodes, pn)
	}

	for _, md := range def.MatchLinks {
		if !t.HasRole(md.Role) || !t.HasRole(md.Other) {
			return nil, invalid("match link %s/%s references an unknown role", md.Role, md.Other)
		}
		if md.Role == md.Other {
			return nil, invalid("match link %s refers to itself", md.Role)
		}
		if md.Type == "" {
			return nil, invalid("match link %s/%s has no type", md.Role, md.Other)
		}
		t.matchLinks = append(t.matchLinks, MatchLink(md))
	}

	groups, err := t.compileGroups(def.DistinctGroups, "distinct")
	if err != nil {
		return nil, invalid("%v", err)
	}
	t.distinct = groups

	groups, err = t.compileGroups(def.SufficientGroups, "sufficient")
	if err != nil {
		return nil, invalid("%v", err)
	}
	for _, g := range groups {
		for _, r := range g.Roles {
			if t.roles[t.byName[r]].Mandatory() {
				return nil, invalid("sufficient group %s contains mandatory role %s", g.Name, r)
			}
		}
	}
	t.sufficient = groups

	return t, nil
}

func (t *Template) checkLink(ld LinkDefinition) error {
	if ld.Type == "" {
		return fmt.Errorf("%s->%s has no type", ld.From, ld.To)
	}
	if !t.HasRole(ld.From) {
		return fmt.Errorf("unknown role %s", ld.From)
	}
	if !t.HasRole(ld.To) {
		return fmt.Errorf("unknown role %s", ld.To)
	}
	return nil
}

func (t *Template) compileGroups(defs []GroupDefinition, kind string) ([]Group, error) {
	out := make([]Group, 0, len(defs))
	for _, gd := range defs {
		if len(gd.Roles) == 0 {
			return nil, fmt.Errorf("%s group %s is empty", kind, gd.Name)
		}
		seen := make(map[string]struct{}, len(gd.Roles))
		for _, r := range gd.Roles {
			if !t.HasRole(r) {
				return nil, fmt.Errorf("%s group %s: unknown role %s", kind, gd.Name, r)
			}
			if _, dup := seen[r]; dup {
				return nil, fmt.Errorf("%s group %s: duplicate role %s", kind, gd.Name, r)
			}
			seen[r] = struct{}{}
		}
		out = append(out, Group{Name: gd.Name, Roles: append([]string(nil), gd.Roles...)})
	}
	return out, nil
}

// Name returns the pattern name.
func (t *Template) Name() string { return t.name }

// Description returns the pattern description.
func (t *Template) Description() string { return t.description }

// Roles returns the role names in declaration order.
func (t *Template) Roles() []string {
	out := make([]string, len(t.roles))
	for i, r := range t.roles {
		out[i] = r.Name
	}
	return out
}

// Role returns the compiled role with the given name.
func (t *Template) Role(name string) (Role, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Role{}, false
	}
	return t.roles[i], true
}

// HasRole reports whether name is a template role.
func (t *Template) HasRole(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// IsMandatory reports whether name is a mandatory template role.
func (t *Template) IsMandatory(name string) bool {
	i, ok := t.byName[name]
	return ok && t.roles[i].Mandatory()
}

// Index returns the declaration index of a role, or -1.
func (t *Template) Index(name string) int {
	i, ok := t.byName[name]
	if !ok {
		return -1
	}
	return i
}

// RolesWith returns the names of the roles with the given presence, in
// declaration order.
func (t *Template) RolesWith(p Presence) []string {
	var out []string
	for _, r := range t.roles {
		if r.Presence == p {
			out = append(out, r.Name)
		}
	}
	return out
}

// Links returns all role-to-role edges.
func (t *Template) Links() []Link { return append([]Link(nil), t.links...) }

// LinksFrom returns the edges leaving role.
func (t *Template) LinksFrom(role string) []Link {
	return append([]Link(nil), t.outgoing[role]...)
}

// LinksTo returns the edges entering role.
func (t *Template) LinksTo(role string) []Link {
	return append([]Link(nil), t.incoming[role]...)
}

// ProhibitedLinks returns the edges that must not exist between bound roles.
func (t *Template) ProhibitedLinks() []Link {
	return append([]Link(nil), t.prohibitedLinks...)
}

// ProhibitedNodes returns the prohibited node constraints.
func (t *Template) ProhibitedNodes() []ProhibitedNode {
	out := make([]ProhibitedNode, len(t.prohibitedNodes))
	for i, p := range t.prohibitedNodes {
		out[i] = ProhibitedNode{Role: p.Role, Links: append([]Link(nil), p.Links...)}
	}
	return out
}

// MatchLinks returns the equality constraints.
func (t *Template) MatchLinks() []MatchLink {
	return append([]MatchLink(nil), t.matchLinks...)
}

// DistinctGroups returns the groups whose bound assets must be pairwise distinct.
func (t *Template) DistinctGroups() []Group { return copyGroups(t.distinct) }

// SufficientGroups returns the groups any one of which, fully bound, satisfies presence.
func (t *Template) SufficientGroups() []Group { return copyGroups(t.sufficient) }

// Accepts reports whether n may be bound to role: it must carry the role and
// pass the role's filter, if any.
func (t *Template) Accepts(role string, n *assetgraph.AssetNode) bool {
	if n == nil || !n.HasRole(role) {
		return false
	}
	if f, ok := t.filters[role]; ok {
		return f.accepts(n)
	}
	return true
}

// PresenceSatisfied reports whether a set of bound roles passes the
// template's presence rules: every mandatory role bound and the presence
// policy satisfied.
func (t *Template) PresenceSatisfied(bound func(role string) bool) bool {
	for _, r := range t.roles {
		if r.Mandatory() && !bound(r.Name) {
			return false
		}
	}
	return t.policy(t.RolesWith(Necessary), t.SufficientGroups(), bound)
}

func copyGroups(in []Group) []Group {
	out := make([]Group, len(in))
	for i, g := range in {
		out[i] = Group{Name: g.Name, Roles: append([]string(nil), g.Roles...)}
	}
	return out
}
