package domain

import (
	"fmt"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/pattern"
)

// RolesFor returns the roles an asset of the given type qualifies for,
// including roles granted to any of its ancestor types.
func (m *Model) RolesFor(typeID string) []string {
	closure := make(map[string]bool)
	for _, t := range m.TypeClosure(typeID) {
		closure[t] = true
	}

	var roles []string
	for _, r := range m.Roles {
		for _, t := range r.Types {
			if closure[t] {
				roles = append(roles, r.Role)
				break
			}
		}
	}
	return roles
}

// AssignRoles tags every asset of g with the roles its type qualifies for.
func (m *Model) AssignRoles(g *assetgraph.Graph) {
	cache := make(map[string][]string)
	for _, n := range g.Nodes() {
		roles, ok := cache[n.Type]
		if !ok {
			roles = m.RolesFor(n.Type)
			cache[n.Type] = roles
		}
		n.AddRole(roles...)
	}
}

// Templates compiles every pattern of the model, keyed by pattern name.
func (m *Model) Templates(opts ...pattern.CompileOption) (map[string]*pattern.Template, error) {
	out := make(map[string]*pattern.Template, len(m.Patterns))
	for _, def := range m.Patterns {
		t, err := pattern.Compile(def, opts...)
		if err != nil {
			return nil, fmt.Errorf("domain %s: %w", m.Key(), err)
		}
		out[def.Name] = t
	}
	return out, nil
}
