package matcher

import (
	"sort"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/pattern"
)

// candidates is an immutable candidate set. It is replaced, never mutated,
// once stored in a State.
type candidates map[string]*assetgraph.AssetNode

// State is the mutable search state of one matching attempt: for each role,
// the set of assets still feasible for it.
//
// A role absent from the state is unconstrained so far. A non-mandatory role
// whose candidates run out is excluded and stays unbound. A role is bound
// once a branch has committed it to one asset. Candidate sets are
// copy-on-write, so Clone only copies the role maps and a clone never shares
// a mutable set with its source.
type State struct {
	parent   *pattern.Template
	feasible map[string]candidates
	excluded map[string]struct{}
	bound    map[string]struct{}
}

// NewState creates an empty state for t.
func NewState(t *pattern.Template) *State {
	return &State{
		parent:   t,
		feasible: make(map[string]candidates),
		excluded: make(map[string]struct{}),
		bound:    make(map[string]struct{}),
	}
}

// Template returns the template the state searches for.
func (s *State) Template() *pattern.Template { return s.parent }

// Clone returns an independent copy of the state.
func (s *State) Clone() *State {
	c := &State{
		parent:   s.parent,
		feasible: make(map[string]candidates, len(s.feasible)),
		excluded: make(map[string]struct{}, len(s.excluded)),
		bound:    make(map[string]struct{}, len(s.bound)),
	}
	for r, set := range s.feasible {
		c.feasible[r] = set
	}
	for r := range s.excluded {
		c.excluded[r] = struct{}{}
	}
	for r := range s.bound {
		c.bound[r] = struct{}{}
	}
	return c
}

// Has reports whether role has a candidate set.
func (s *State) Has(role string) bool {
	_, ok := s.feasible[role]
	return ok
}

// Candidates returns the role's candidates sorted by ID, and whether the role
// is constrained at all.
func (s *State) Candidates(role string) ([]*assetgraph.AssetNode, bool) {
	set, ok := s.feasible[role]
	if !ok {
		return nil, false
	}
	out := make([]*assetgraph.AssetNode, 0, len(set))
	for _, n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, true
}

// Count returns the number of candidates for role, or -1 if it is absent.
func (s *State) Count(role string) int {
	set, ok := s.feasible[role]
	if !ok {
		return -1
	}
	return len(set)
}

// Contains reports whether id is a candidate for role.
func (s *State) Contains(role, id string) bool {
	_, ok := s.feasible[role][id]
	return ok
}

// Set replaces the candidates of role.
func (s *State) Set(role string, nodes []*assetgraph.AssetNode) {
	set := make(candidates, len(nodes))
	for _, n := range nodes {
		set[n.ID] = n
	}
	s.feasible[role] = set
}

// Bind narrows role to the single asset n and marks it bound.
func (s *State) Bind(role string, n *assetgraph.AssetNode) {
	s.feasible[role] = candidates{n.ID: n}
	s.bound[role] = struct{}{}
}

// IsBound reports whether role was committed to an asset by Bind. A role
// narrowed to one candidate by propagation is not bound.
func (s *State) IsBound(role string) bool {
	_, ok := s.bound[role]
	return ok
}

// Restrict keeps only the candidates of role for which keep returns true and
// reports whether anything was removed. An absent role is left unconstrained.
func (s *State) Restrict(role string, keep func(*assetgraph.AssetNode) bool) bool {
	set, ok := s.feasible[role]
	if !ok {
		return false
	}
	var next candidates
	for id, n := range set {
		if keep(n) {
			continue
		}
		if next == nil {
			next = make(candidates, len(set))
			for k, v := range set {
				next[k] = v
			}
		}
		delete(next, id)
	}
	if next == nil {
		return false
	}
	s.feasible[role] = next
	return true
}

// Exclude drops a role from the search. Its candidates are discarded and it
// will not be bound.
func (s *State) Exclude(role string) {
	delete(s.feasible, role)
	s.excluded[role] = struct{}{}
}

// IsExcluded reports whether role was dropped.
func (s *State) IsExcluded(role string) bool {
	_, ok := s.excluded[role]
	return ok
}

// Singleton returns the only candidate of role, if it has exactly one.
func (s *State) Singleton(role string) (*assetgraph.AssetNode, bool) {
	set := s.feasible[role]
	if len(set) != 1 {
		return nil, false
	}
	for _, n := range set {
		return n, true
	}
	return nil, false
}

// Invalid reports whether any constrained, in-scope role has no candidates.
func (s *State) Invalid() bool {
	for r, set := range s.feasible {
		if len(set) == 0 && !s.IsExcluded(r) {
			return true
		}
	}
	return false
}

// Bindings returns the role to asset ID assignment of every singleton role.
func (s *State) Bindings() map[string]string {
	out := make(map[string]string, len(s.feasible))
	for r := range s.feasible {
		if n, ok := s.Singleton(r); ok {
			out[r] = n.ID
		}
	}
	return out
}
