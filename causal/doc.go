// Package causal builds the secondary effect graph of an assessment.
//
// Every threat contributes one Step: its causes are the misbehaviours that
// make it possible (empty for a primary threat) and its effects are the
// misbehaviours it leads to. Together the steps form a directed, possibly
// cyclic graph with an edge from each cause misbehaviour to the step and from
// the step to each effect misbehaviour. Root causes are the nodes without
// incoming edges.
//
// The graph is built once per risk calculation over a snapshot of the
// threat model and is read-only afterwards.
package causal
