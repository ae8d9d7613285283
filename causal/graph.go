package causal

import (
	"sort"

	"github.com/Spyderisk/system-modeller-sub004/threat"
)

// NodeKind tells threat nodes from misbehaviour nodes.
type NodeKind string

const (
	// NodeThreat is a threat (step) node.
	NodeThreat NodeKind = "threat"

	// NodeMisbehaviour is a misbehaviour set node.
	NodeMisbehaviour NodeKind = "misbehaviour"
)

// NodeRef identifies a node of the causal graph.
type NodeRef struct {
	Kind NodeKind `json:"kind"`
	ID   string   `json:"id"`
}

// Graph is the secondary effect graph. Misbehaviours point to the steps they
// cause and steps point to the misbehaviours they cause. The graph may be
// cyclic; nodes are interned as integer indices so no pointer cycles exist.
//
// A Graph is immutable once built and safe for concurrent reads.
type Graph struct {
	steps   []Step
	stepIdx map[string]int

	mbs   []string
	mbIdx map[string]int

	// stepCauses[s] and stepEffects[s] are misbehaviour indices.
	stepCauses  [][]int
	stepEffects [][]int

	// mbCausedBy[m] holds the steps with m in their effect; mbEnables[m]
	// holds the steps with m in their cause.
	mbCausedBy [][]int
	mbEnables  [][]int
}

// Build creates the graph for steps. Steps with duplicate IDs are merged.
func Build(steps []Step) *Graph {
	g := &Graph{
		stepIdx: make(map[string]int, len(steps)),
		mbIdx:   make(map[string]int),
	}

	merged := make(map[string]Step, len(steps))
	for _, s := range steps {
		cur, ok := merged[s.ID]
		if !ok {
			merged[s.ID] = Step{ID: s.ID, Cause: s.Cause.Clone(), Effect: s.Effect.Clone(), Active: s.Active}
			continue
		}
		cur.Cause.AddAll(s.Cause)
		cur.Effect.AddAll(s.Effect)
		cur.Active = cur.Active || s.Active
		merged[s.ID] = cur
	}
	for _, s := range merged {
		g.steps = append(g.steps, s)
	}
	sort.Slice(g.steps, func(i, j int) bool { return g.steps[i].ID < g.steps[j].ID })

	var mbs []string
	seen := make(map[string]struct{})
	for i, s := range g.steps {
		g.stepIdx[s.ID] = i
		for m := range s.Cause {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				mbs = append(mbs, m)
			}
		}
		for m := range s.Effect {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				mbs = append(mbs, m)
			}
		}
	}
	sort.Strings(mbs)
	g.mbs = mbs
	for i, m := range mbs {
		g.mbIdx[m] = i
	}

	g.stepCauses = make([][]int, len(g.steps))
	g.stepEffects = make([][]int, len(g.steps))
	g.mbCausedBy = make([][]int, len(mbs))
	g.mbEnables = make([][]int, len(mbs))
	for si, s := range g.steps {
		for _, m := range s.Cause.Sorted() {
			mi := g.mbIdx[m]
			g.stepCauses[si] = append(g.stepCauses[si], mi)
			g.mbEnables[mi] = append(g.mbEnables[mi], si)
		}
		for _, m := range s.Effect.Sorted() {
			mi := g.mbIdx[m]
			g.stepEffects[si] = append(g.stepEffects[si], mi)
			g.mbCausedBy[mi] = append(g.mbCausedBy[mi], si)
		}
	}
	return g
}

// Steps returns every step sorted by ID.
func (g *Graph) Steps() []Step {
	return append([]Step(nil), g.steps...)
}

// Step returns the step with the given threat URI.
func (g *Graph) Step(id string) (Step, bool) {
	i, ok := g.stepIdx[id]
	if !ok {
		return Step{}, false
	}
	return g.steps[i], true
}

// ActiveSteps returns the IDs of the steps whose threat is unresolved.
func (g *Graph) ActiveSteps() []string {
	var out []string
	for _, s := range g.steps {
		if s.Active {
			out = append(out, s.ID)
		}
	}
	return out
}

// Misbehaviours returns every misbehaviour set URI in the graph, sorted.
func (g *Graph) Misbehaviours() []string {
	return append([]string(nil), g.mbs...)
}

// PrimaryThreats returns the IDs of the steps without causes.
func (g *Graph) PrimaryThreats() []string {
	var out []string
	for _, s := range g.steps {
		if s.IsPrimaryThreat() {
			out = append(out, s.ID)
		}
	}
	return out
}

// SecondaryThreats returns the IDs of the steps with at least one cause.
func (g *Graph) SecondaryThreats() []string {
	var out []string
	for _, s := range g.steps {
		if !s.IsPrimaryThreat() {
			out = append(out, s.ID)
		}
	}
	return out
}

// RootCauses returns the nodes without incoming edges: primary threats and
// misbehaviours no threat causes. Threats come first, each kind sorted by ID.
func (g *Graph) RootCauses() []NodeRef {
	var out []NodeRef
	for si, s := range g.steps {
		if len(g.stepCauses[si]) == 0 {
			out = append(out, NodeRef{Kind: NodeThreat, ID: s.ID})
		}
	}
	for mi, m := range g.mbs {
		if len(g.mbCausedBy[mi]) == 0 {
			out = append(out, NodeRef{Kind: NodeMisbehaviour, ID: m})
		}
	}
	return out
}

// DirectCauses returns the threats that directly cause misbehaviour m, sorted.
func (g *Graph) DirectCauses(m string) []string {
	mi, ok := g.mbIdx[m]
	if !ok {
		return nil
	}
	return g.stepIDs(g.mbCausedBy[mi])
}

// DirectEffects returns the threats misbehaviour m directly enables, sorted.
func (g *Graph) DirectEffects(m string) []string {
	mi, ok := g.mbIdx[m]
	if !ok {
		return nil
	}
	return g.stepIDs(g.mbEnables[mi])
}

// Ancestors returns every threat upstream of misbehaviour m, sorted. Cycles
// are followed once.
func (g *Graph) Ancestors(m string) []string {
	mi, ok := g.mbIdx[m]
	if !ok {
		return nil
	}
	return g.stepIDs(g.upstream(mi))
}

// RootCausesOf returns the primary threats upstream of misbehaviour m, sorted.
func (g *Graph) RootCausesOf(m string) []string {
	mi, ok := g.mbIdx[m]
	if !ok {
		return nil
	}
	var roots []int
	for _, si := range g.upstream(mi) {
		if len(g.stepCauses[si]) == 0 {
			roots = append(roots, si)
		}
	}
	return g.stepIDs(roots)
}

// Annotate fills the cause and effect sets of each misbehaviour set from the
// graph. Existing contents are replaced. Sets absent from the graph end up
// with empty relations.
func (g *Graph) Annotate(msets []*threat.MisbehaviourSet) {
	for _, ms := range msets {
		direct := threat.NewURISet(g.DirectCauses(ms.URI)...)
		indirect := threat.NewURISet()
		for _, a := range g.Ancestors(ms.URI) {
			if !direct.Has(a) {
				indirect.Add(a)
			}
		}
		ms.DirectCauses = direct
		ms.IndirectCauses = indirect
		ms.RootCauses = threat.NewURISet(g.RootCausesOf(ms.URI)...)
		ms.DirectEffects = threat.NewURISet(g.DirectEffects(ms.URI)...)
	}
}

// upstream walks backwards from misbehaviour mi and returns the indices of
// every step reached.
func (g *Graph) upstream(mi int) []int {
	seenStep := make([]bool, len(g.steps))
	seenMb := make([]bool, len(g.mbs))
	seenMb[mi] = true
	queue := []int{mi}
	var out []int
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		for _, si := range g.mbCausedBy[m] {
			if seenStep[si] {
				continue
			}
			seenStep[si] = true
			out = append(out, si)
			for _, cm := range g.stepCauses[si] {
				if !seenMb[cm] {
					seenMb[cm] = true
					queue = append(queue, cm)
				}
			}
		}
	}
	return out
}

func (g *Graph) stepIDs(idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.steps[i].ID)
	}
	sort.Strings(out)
	return out
}
