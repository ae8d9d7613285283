package assetgraph

import (
	"sort"
)

// AssetNode is one asset of a system model together with the roles it
// qualifies for and its typed links to neighbouring assets.
//
// Nodes are created by a Graph and are owned by the matching pass that built
// the graph. Once the graph has been handed to a matcher the node must be
// treated as read-only.
type AssetNode struct {
	// ID is the asset identifier (usually the asset URI).
	ID string

	// Type is the domain asset type (e.g., "Host", "Process").
	Type string

	// Label is the human-readable asset name.
	Label string

	// Attributes carries asset properties available to pattern filters.
	Attributes map[string]any

	roles    map[string]struct{}
	forward  map[string]map[string]*AssetNode
	backward map[string]map[string]*AssetNode
}

func newAssetNode(a Asset) *AssetNode {
	attrs := make(map[string]any, len(a.Attributes))
	for k, v := range a.Attributes {
		attrs[k] = v
	}
	return &AssetNode{
		ID:         a.ID,
		Type:       a.Type,
		Label:      a.Label,
		Attributes: attrs,
		roles:      make(map[string]struct{}),
		forward:    make(map[string]map[string]*AssetNode),
		backward:   make(map[string]map[string]*AssetNode),
	}
}

// AddRole marks the asset as qualifying for the given domain roles.
func (n *AssetNode) AddRole(roles ...string) {
	for _, r := range roles {
		if r == "" {
			continue
		}
		n.roles[r] = struct{}{}
	}
}

// HasRole reports whether the asset qualifies for role.
func (n *AssetNode) HasRole(role string) bool {
	_, ok := n.roles[role]
	return ok
}

// Roles returns the roles the asset qualifies for, sorted.
func (n *AssetNode) Roles() []string {
	out := make([]string, 0, len(n.roles))
	for r := range n.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Forward returns the assets this asset links to with relType, sorted by ID.
func (n *AssetNode) Forward(relType string) []*AssetNode {
	return sortedNodes(n.forward[relType])
}

// Backward returns the assets linking to this asset with relType, sorted by ID.
func (n *AssetNode) Backward(relType string) []*AssetNode {
	return sortedNodes(n.backward[relType])
}

// HasForward reports whether this asset links to targetID with relType.
func (n *AssetNode) HasForward(relType, targetID string) bool {
	_, ok := n.forward[relType][targetID]
	return ok
}

// HasBackward reports whether sourceID links to this asset with relType.
func (n *AssetNode) HasBackward(relType, sourceID string) bool {
	_, ok := n.backward[relType][sourceID]
	return ok
}

// EachForward calls fn for every asset this asset links to with relType.
// Iteration order is unspecified.
func (n *AssetNode) EachForward(relType string, fn func(*AssetNode)) {
	for _, m := range n.forward[relType] {
		fn(m)
	}
}

// EachBackward calls fn for every asset linking to this asset with relType.
// Iteration order is unspecified.
func (n *AssetNode) EachBackward(relType string, fn func(*AssetNode)) {
	for _, m := range n.backward[relType] {
		fn(m)
	}
}

// ForwardIDs returns the IDs of the assets this asset links to with relType, sorted.
func (n *AssetNode) ForwardIDs(relType string) []string {
	targets := n.forward[relType]
	out := make([]string, 0, len(targets))
	for id := range targets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RelationTypes returns the relation types of the asset's outgoing links, sorted.
func (n *AssetNode) RelationTypes() []string {
	out := make([]string, 0, len(n.forward))
	for t := range n.forward {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (n *AssetNode) link(relType string, to *AssetNode) bool {
	if n.forward[relType] == nil {
		n.forward[relType] = make(map[string]*AssetNode)
	}
	if _, exists := n.forward[relType][to.ID]; exists {
		return false
	}
	n.forward[relType][to.ID] = to
	if to.backward[relType] == nil {
		to.backward[relType] = make(map[string]*AssetNode)
	}
	to.backward[relType][n.ID] = n
	return true
}

func sortedNodes(set map[string]*AssetNode) []*AssetNode {
	out := make([]*AssetNode, 0, len(set))
	for _, n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
