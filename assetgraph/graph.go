package assetgraph

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors for graph construction.
var (
	// ErrAssetNotFound indicates a relation references an asset that is not in the graph.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrDuplicateAsset indicates an asset ID was added twice.
	ErrDuplicateAsset = errors.New("duplicate asset")

	// ErrInvalidAsset indicates an asset or relation record is missing required fields.
	ErrInvalidAsset = errors.New("invalid asset record")
)

// Asset is an asset record as delivered by the storage layer.
type Asset struct {
	// ID is the unique asset identifier. Required.
	ID string `json:"id" yaml:"id"`

	// Type is the domain asset type. Required.
	Type string `json:"type" yaml:"type"`

	// Label is the human-readable asset name.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Attributes contains optional asset properties.
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Validate checks that the asset has its required fields.
func (a Asset) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: asset ID is required", ErrInvalidAsset)
	}
	if a.Type == "" {
		return fmt.Errorf("%w: asset %q has no type", ErrInvalidAsset, a.ID)
	}
	return nil
}

// Relation is a typed, directed relation between two assets.
type Relation struct {
	// From is the source asset ID.
	From string `json:"from" yaml:"from"`

	// Type is the relation type (e.g., "hosts", "connectsTo").
	Type string `json:"type" yaml:"type"`

	// To is the target asset ID.
	To string `json:"to" yaml:"to"`
}

// Validate checks that the relation has all required fields populated.
func (r Relation) Validate() error {
	if r.From == "" {
		return fmt.Errorf("%w: relation From cannot be empty", ErrInvalidAsset)
	}
	if r.To == "" {
		return fmt.Errorf("%w: relation To cannot be empty", ErrInvalidAsset)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: relation Type cannot be empty", ErrInvalidAsset)
	}
	return nil
}

// Graph is an in-memory, possibly cyclic, directed graph of assets connected
// by typed relations. It is built fresh for each matching pass.
//
// A Graph is not safe for concurrent mutation. Once built it may be shared
// read-only by any number of concurrent searches.
type Graph struct {
	nodes     map[string]*AssetNode
	relations int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*AssetNode)}
}

// FromModel builds a graph from asset records and relation triples.
//
// Example:
//
//	g, err := assetgraph.FromModel(
//	    []assetgraph.Asset{{ID: "h1", Type: "Host"}, {ID: "p1", Type: "Process"}},
//	    []assetgraph.Relation{{From: "h1", Type: "hosts", To: "p1"}},
//	)
func FromModel(assets []Asset, relations []Relation) (*Graph, error) {
	g := NewGraph()
	for _, a := range assets {
		if _, err := g.AddAsset(a); err != nil {
			return nil, err
		}
	}
	for _, r := range relations {
		if err := g.AddRelation(r); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddAsset adds an asset and returns its node.
func (g *Graph) AddAsset(a Asset) (*AssetNode, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if _, exists := g.nodes[a.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, a.ID)
	}
	n := newAssetNode(a)
	g.nodes[a.ID] = n
	return n, nil
}

// AddRelation links two existing assets. Adding the same relation twice is a no-op.
func (g *Graph) AddRelation(r Relation) error {
	if err := r.Validate(); err != nil {
		return err
	}
	from, ok := g.nodes[r.From]
	if !ok {
		return fmt.Errorf("%w: relation source %s", ErrAssetNotFound, r.From)
	}
	to, ok := g.nodes[r.To]
	if !ok {
		return fmt.Errorf("%w: relation target %s", ErrAssetNotFound, r.To)
	}
	if from.link(r.Type, to) {
		g.relations++
	}
	return nil
}

// Node returns the node for an asset ID.
func (g *Graph) Node(id string) (*AssetNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node sorted by ID.
func (g *Graph) Nodes() []*AssetNode {
	return sortedNodes(g.nodes)
}

// WithRole returns the nodes qualifying for role, sorted by ID.
func (g *Graph) WithRole(role string) []*AssetNode {
	var out []*AssetNode
	for _, n := range g.nodes {
		if n.HasRole(role) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of assets.
func (g *Graph) Len() int { return len(g.nodes) }

// RelationCount returns the number of distinct relations.
func (g *Graph) RelationCount() int { return g.relations }
