package matcher

import (
	"context"
	"log/slog"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/pattern"
)

// search is the backtracking walk of one Match call. It is owned by a single
// goroutine.
type search struct {
	ctx    context.Context
	g      *assetgraph.Graph
	t      *pattern.Template
	logger *slog.Logger
	max    int

	roles     []string
	required  map[string]bool
	qualified map[string][]*assetgraph.AssetNode

	expansions int
	matches    []Match
	stopped    string
}

func newSearch(ctx context.Context, g *assetgraph.Graph, t *pattern.Template, cfg config) *search {
	s := &search{
		ctx:       ctx,
		g:         g,
		t:         t,
		logger:    cfg.logger,
		max:       cfg.maxExpansions,
		roles:     t.Roles(),
		required:  make(map[string]bool),
		qualified: make(map[string][]*assetgraph.AssetNode),
	}
	for _, r := range s.roles {
		if t.IsMandatory(r) {
			s.required[r] = true
		}
	}
	return s
}

func (s *search) run(st *State) {
	if s.stopped != "" {
		return
	}
	if err := s.ctx.Err(); err != nil {
		s.stopped = err.Error()
		return
	}
	if s.max > 0 && s.expansions >= s.max {
		s.stopped = ReasonBudget
		return
	}
	s.expansions++

	if !s.settle(st) {
		return
	}

	role := s.branchRole(st)
	if role == "" {
		s.accept(st)
		return
	}

	cands, _ := st.Candidates(role)
	for _, n := range cands {
		if s.stopped != "" {
			return
		}
		next := st.Clone()
		next.Bind(role, n)
		s.run(next)
	}

	// A non-mandatory role may also stay unbound: binding it can exclude a
	// later role that the presence policy needs.
	if !s.required[role] && s.stopped == "" {
		next := st.Clone()
		next.Exclude(role)
		s.run(next)
	}
}

// settle runs propagation, pruning and seeding to a fixpoint. It returns
// false when a required role has no candidates left.
func (s *search) settle(st *State) bool {
	for {
		changed := s.propagate(st)
		if s.prune(st) {
			changed = true
		}
		alive, excluded := s.normalize(st)
		if !alive {
			return false
		}
		if changed || excluded {
			continue
		}
		if s.seed(st) {
			continue
		}
		return true
	}
}

// canNarrow reports whether the candidates of src may be used to remove
// candidates of dst. Required roles are only narrowed by required roles. An
// optional role narrows other optional roles only once it is bound, since
// until then it may still be left out.
func (s *search) canNarrow(st *State, src, dst string) bool {
	if s.required[dst] {
		return s.required[src]
	}
	if s.required[src] {
		return true
	}
	return st.IsBound(src)
}

func (s *search) active(st *State, role string) bool {
	return st.Has(role) && !st.IsExcluded(role)
}

func (s *search) propagate(st *State) bool {
	changed := false
	for _, l := range s.t.Links() {
		if st.IsExcluded(l.From) || st.IsExcluded(l.To) {
			continue
		}
		if st.Count(l.From) > 0 && s.canNarrow(st, l.From, l.To) {
			reach := make(candidates)
			src, _ := st.Candidates(l.From)
			for _, n := range src {
				n.EachForward(l.Type, func(m *assetgraph.AssetNode) { reach[m.ID] = m })
			}
			if s.narrow(st, l.To, reach) {
				changed = true
			}
		}
		if st.Count(l.To) > 0 && s.canNarrow(st, l.To, l.From) {
			reach := make(candidates)
			dst, _ := st.Candidates(l.To)
			for _, n := range dst {
				n.EachBackward(l.Type, func(m *assetgraph.AssetNode) { reach[m.ID] = m })
			}
			if s.narrow(st, l.From, reach) {
				changed = true
			}
		}
	}
	return changed
}

// narrow intersects role's candidates with reach, or seeds an unconstrained
// role with the members of reach that qualify for it.
func (s *search) narrow(st *State, role string, reach candidates) bool {
	if !st.Has(role) {
		nodes := make([]*assetgraph.AssetNode, 0, len(reach))
		for _, n := range reach {
			if s.t.Accepts(role, n) {
				nodes = append(nodes, n)
			}
		}
		st.Set(role, nodes)
		return true
	}
	return st.Restrict(role, func(n *assetgraph.AssetNode) bool {
		_, ok := reach[n.ID]
		return ok
	})
}

func (s *search) prune(st *State) bool {
	changed := false
	for _, r := range s.roles {
		a, ok := st.Singleton(r)
		if !ok || st.IsExcluded(r) {
			continue
		}

		for _, g := range s.t.DistinctGroups() {
			if !contains(g.Roles, r) {
				continue
			}
			for _, other := range g.Roles {
				if other == r || !s.active(st, other) || !s.canNarrow(st, r, other) {
					continue
				}
				if st.Restrict(other, func(n *assetgraph.AssetNode) bool { return n.ID != a.ID }) {
					changed = true
				}
			}
		}

		for _, l := range s.t.ProhibitedLinks() {
			if l.From == l.To {
				continue
			}
			if l.From == r && s.active(st, l.To) && s.canNarrow(st, r, l.To) {
				if st.Restrict(l.To, func(n *assetgraph.AssetNode) bool { return !a.HasForward(l.Type, n.ID) }) {
					changed = true
				}
			}
			if l.To == r && s.active(st, l.From) && s.canNarrow(st, r, l.From) {
				if st.Restrict(l.From, func(n *assetgraph.AssetNode) bool { return !n.HasForward(l.Type, a.ID) }) {
					changed = true
				}
			}
		}

		for _, ml := range s.t.MatchLinks() {
			var other string
			switch r {
			case ml.Role:
				other = ml.Other
			case ml.Other:
				other = ml.Role
			default:
				continue
			}
			if !s.active(st, other) || !s.canNarrow(st, r, other) {
				continue
			}
			if st.Restrict(other, func(n *assetgraph.AssetNode) bool { return sameTargets(a, n, ml.Type) }) {
				changed = true
			}
		}
	}

	for _, pn := range s.t.ProhibitedNodes() {
		if s.pruneProhibitedNode(st, pn) {
			changed = true
		}
	}
	return changed
}

// pruneProhibitedNode removes candidates of a role that would complete a
// prohibited node once every other role of the constraint is a singleton.
func (s *search) pruneProhibitedNode(st *State, pn pattern.ProhibitedNode) bool {
	roles := pn.TemplateRoles()
	changed := false
	for _, x := range roles {
		if !s.active(st, x) {
			continue
		}
		fixed := make(map[string]*assetgraph.AssetNode, len(roles))
		ready := true
		for _, o := range roles {
			if o == x {
				continue
			}
			n, ok := st.Singleton(o)
			if !ok || st.IsExcluded(o) || !s.canNarrow(st, o, x) {
				ready = false
				break
			}
			fixed[o] = n
		}
		if !ready {
			continue
		}
		if st.Restrict(x, func(n *assetgraph.AssetNode) bool {
			_, found := prohibitedNodeFor(pn, func(r string) *assetgraph.AssetNode {
				if r == x {
					return n
				}
				return fixed[r]
			})
			return !found
		}) {
			changed = true
		}
	}
	return changed
}

// normalize ends the branch when a required role is empty and excludes empty
// optional roles.
func (s *search) normalize(st *State) (alive bool, excluded bool) {
	for _, r := range s.roles {
		if st.Count(r) != 0 || st.IsExcluded(r) {
			continue
		}
		if s.required[r] {
			return false, excluded
		}
		st.Exclude(r)
		excluded = true
	}
	return true, excluded
}

// seed gives the first unconstrained role every qualifying asset in the
// graph, required roles first.
func (s *search) seed(st *State) bool {
	for _, pass := range []bool{true, false} {
		for _, r := range s.roles {
			if s.required[r] != pass || st.Has(r) || st.IsExcluded(r) {
				continue
			}
			st.Set(r, s.qualifying(r))
			return true
		}
	}
	return false
}

func (s *search) qualifying(role string) []*assetgraph.AssetNode {
	if nodes, ok := s.qualified[role]; ok {
		return nodes
	}
	var nodes []*assetgraph.AssetNode
	for _, n := range s.g.WithRole(role) {
		if s.t.Accepts(role, n) {
			nodes = append(nodes, n)
		}
	}
	s.qualified[role] = nodes
	return nodes
}

// branchRole picks the next role to split on: the first required role with
// several candidates, then the first optional role not yet bound.
func (s *search) branchRole(st *State) string {
	for _, r := range s.roles {
		if s.required[r] && st.Count(r) > 1 {
			return r
		}
	}
	for _, r := range s.roles {
		if !s.required[r] && !st.IsExcluded(r) && !st.IsBound(r) && st.Count(r) > 0 {
			return r
		}
	}
	return ""
}

func (s *search) accept(st *State) {
	nodes := make(map[string]*assetgraph.AssetNode, len(s.roles))
	bindings := make(map[string]string, len(s.roles))
	for _, r := range s.roles {
		if st.IsExcluded(r) {
			continue
		}
		n, ok := st.Singleton(r)
		if !ok {
			continue
		}
		nodes[r] = n
		bindings[r] = n.ID
	}
	if err := validateNodes(s.t, nodes); err != nil {
		s.logger.Debug("candidate match rejected",
			"pattern", s.t.Name(),
			"bindings", bindings,
			"error", err,
		)
		return
	}
	s.matches = append(s.matches, Match{Pattern: s.t.Name(), Bindings: bindings})
}

// maximal drops repeated matches and matches whose bindings are a strict
// subset of another match's. Leaving an optional role unbound only yields a
// distinct match when no consistent binding for it exists.
func maximal(matches []Match) []Match {
	out := make([]Match, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for i, m := range matches {
		key := m.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		dominated := false
		for j, o := range matches {
			if i != j && extends(o.Bindings, m.Bindings) {
				dominated = true
				break
			}
		}
		if dominated {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

// extends reports whether big binds every role of small to the same asset
// and binds more roles.
func extends(big, small map[string]string) bool {
	if len(big) <= len(small) {
		return false
	}
	for r, id := range small {
		if big[r] != id {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
