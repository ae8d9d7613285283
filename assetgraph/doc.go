// Package assetgraph holds the in-memory system model a pattern search runs over.
//
// A system model is a set of assets connected by typed, directed relations.
// Each asset also carries the set of domain roles it qualifies for; the domain
// model assigns these before matching (see domain.Model.AssignRoles). Links are
// queryable by relation type in both directions, which is what the matcher
// needs to propagate candidate assets along template edges.
package assetgraph
