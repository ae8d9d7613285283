// Package pattern compiles domain graph patterns into immutable templates.
//
// A pattern is a set of named roles, the typed links that must exist between
// the assets bound to them, and the negative and equality constraints a
// match must satisfy:
//
//   - prohibited links: edges that must not exist between bound assets
//   - prohibited nodes: extra assets that must not exist with the given links
//   - match links: two bound assets must share the same forward targets
//   - distinct groups: bound assets must be pairwise distinct
//   - presence: mandatory, optional and necessary roles plus sufficient groups
//
// Templates are compiled once per domain-model version with Compile and are
// then shared read-only by every search.
package pattern
