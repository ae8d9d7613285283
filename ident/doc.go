// Package ident generates deterministic URIs for the threats, misbehaviour
// sets, control sets and control strategies instantiated from pattern matches.
package ident
