package matcher

import (
	"errors"
	"fmt"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/pattern"
)

// Rejection reasons returned by ValidateAssignment.
var (
	// ErrUnknownRole indicates a role that is not part of the template.
	ErrUnknownRole = errors.New("unknown template role")

	// ErrNotQualified indicates an asset that is missing from the graph or
	// does not qualify for the role it is bound to.
	ErrNotQualified = errors.New("asset does not qualify for role")

	// ErrLinkMissing indicates a template link with no matching graph link.
	ErrLinkMissing = errors.New("required link missing")

	// ErrProhibited indicates a prohibited link or prohibited node is present.
	ErrProhibited = errors.New("prohibited structure present")

	// ErrMatchLink indicates two roles whose forward targets should agree do not.
	ErrMatchLink = errors.New("match link targets differ")

	// ErrNotDistinct indicates a distinct group with two roles bound to one asset.
	ErrNotDistinct = errors.New("distinct roles share an asset")

	// ErrPresencePolicy indicates a mandatory role is unbound or the presence
	// policy rejects the set of bound roles.
	ErrPresencePolicy = errors.New("presence policy not satisfied")
)

// ValidateAssignment checks a complete role to asset assignment against every
// constraint of t. Roles missing from bindings are treated as unbound. It
// returns nil when the assignment is an acceptable match.
func ValidateAssignment(g *assetgraph.Graph, t *pattern.Template, bindings map[string]string) error {
	nodes := make(map[string]*assetgraph.AssetNode, len(bindings))
	for role, id := range bindings {
		if !t.HasRole(role) {
			return fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		n, ok := g.Node(id)
		if !ok || !t.Accepts(role, n) {
			return fmt.Errorf("%w: %s as %s", ErrNotQualified, id, role)
		}
		nodes[role] = n
	}
	return validateNodes(t, nodes)
}

func validateNodes(t *pattern.Template, nodes map[string]*assetgraph.AssetNode) error {
	if !t.PresenceSatisfied(func(r string) bool { return nodes[r] != nil }) {
		return ErrPresencePolicy
	}

	for _, l := range t.Links() {
		from, to := nodes[l.From], nodes[l.To]
		if from == nil || to == nil {
			continue
		}
		if !from.HasForward(l.Type, to.ID) {
			return fmt.Errorf("%w: %s(%s) -%s-> %s(%s)", ErrLinkMissing, l.From, from.ID, l.Type, l.To, to.ID)
		}
	}

	for _, l := range t.ProhibitedLinks() {
		from, to := nodes[l.From], nodes[l.To]
		if from == nil || to == nil {
			continue
		}
		if from.HasForward(l.Type, to.ID) {
			return fmt.Errorf("%w: link %s -%s-> %s", ErrProhibited, from.ID, l.Type, to.ID)
		}
	}

	for _, pn := range t.ProhibitedNodes() {
		if offender, ok := prohibitedNodeFor(pn, func(r string) *assetgraph.AssetNode { return nodes[r] }); ok {
			return fmt.Errorf("%w: %s %s", ErrProhibited, pn.Role, offender.ID)
		}
	}

	for _, ml := range t.MatchLinks() {
		a, b := nodes[ml.Role], nodes[ml.Other]
		if a == nil || b == nil {
			continue
		}
		if !sameTargets(a, b, ml.Type) {
			return fmt.Errorf("%w: %s and %s on %s", ErrMatchLink, a.ID, b.ID, ml.Type)
		}
	}

	for _, g := range t.DistinctGroups() {
		seen := make(map[string]string, len(g.Roles))
		for _, r := range g.Roles {
			n := nodes[r]
			if n == nil {
				continue
			}
			if other, dup := seen[n.ID]; dup {
				return fmt.Errorf("%w: %s and %s both bound to %s in group %s", ErrNotDistinct, other, r, n.ID, g.Name)
			}
			seen[n.ID] = r
		}
	}

	return nil
}

// prohibitedNodeFor looks for an asset carrying pn.Role that has every link of
// pn to the assets returned by bound. A constraint touching an unbound role
// does not apply.
func prohibitedNodeFor(pn pattern.ProhibitedNode, bound func(string) *assetgraph.AssetNode) (*assetgraph.AssetNode, bool) {
	for _, r := range pn.TemplateRoles() {
		if bound(r) == nil {
			return nil, false
		}
	}

	first := pn.Links[0]
	var pool []*assetgraph.AssetNode
	if first.From == pn.Role {
		pool = bound(first.To).Backward(first.Type)
	} else {
		pool = bound(first.From).Forward(first.Type)
	}

	for _, cand := range pool {
		if !cand.HasRole(pn.Role) {
			continue
		}
		linked := true
		for _, l := range pn.Links {
			if l.From == pn.Role {
				linked = cand.HasForward(l.Type, bound(l.To).ID)
			} else {
				linked = bound(l.From).HasForward(l.Type, cand.ID)
			}
			if !linked {
				break
			}
		}
		if linked {
			return cand, true
		}
	}
	return nil, false
}

func sameTargets(a, b *assetgraph.AssetNode, relType string) bool {
	at, bt := a.ForwardIDs(relType), b.ForwardIDs(relType)
	if len(at) != len(bt) {
		return false
	}
	for i := range at {
		if at[i] != bt[i] {
			return false
		}
	}
	return true
}
