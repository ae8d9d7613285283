// Package domain holds the domain model a system is assessed against: the
// asset type hierarchy, the roles asset types qualify for, the ordered level
// scales, misbehaviours, controls, the patterns threats are found by and the
// threat definitions themselves.
//
// A domain model is authored as YAML and loaded with Load or Parse. Loading
// validates both the document shape and every cross reference, so a Model
// returned without error can be compiled and instantiated without further
// checks.
//
// Basic usage:
//
//	m, err := domain.Load("domains/network.yaml")
//	if err != nil {
//	    return err
//	}
//	templates, err := m.Templates()
//	if err != nil {
//	    return err
//	}
//	m.AssignRoles(graph)
//
// An Instantiator turns each accepted pattern match into a threat with its
// misbehaviour sets, control sets and control strategies, adding them to a
// threat.Model. Entities are identified by deterministic URIs, so the same
// control set reached from two threats is one shared value.
package domain
