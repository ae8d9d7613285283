// Package modeller is a knowledge-graph security risk assessment engine.
//
// Given a system model (a graph of assets and the relations between them)
// and a domain model (asset types, roles, graph patterns, threats,
// misbehaviours, controls and control strategies) the engine finds every
// place each domain pattern occurs in the system, instantiates the threats
// found there, decides which threats are resolved by the proposed controls,
// and links misbehaviours to the threats they enable.
//
// # Core Concepts
//
//   - Asset graph: typed assets with labelled directed relations (package assetgraph)
//   - Pattern: named roles, required and prohibited links between them, and
//     presence rules (package pattern)
//   - Match: an assignment of assets to a pattern's roles (package matcher)
//   - Threat model: threats, misbehaviour sets, control sets and control
//     strategies (package threat)
//   - Secondary effects: the causal graph of misbehaviours and threats
//     (package causal)
//
// # Getting Started
//
// Create an engine, load a domain model and assess a system:
//
//	engine := modeller.NewEngine(modeller.WithLogger(logger))
//	if _, err := engine.LoadDomain("domains/network.yaml"); err != nil {
//		log.Fatal(err)
//	}
//
//	assessment, err := engine.Assess(ctx, "network", "", validator.Input{
//		Assets:    assets,
//		Relations: relations,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(assessment.RiskVector)
//
// # Error Handling
//
// Engine methods return *Error values carrying the operation and a kind.
// Sentinel errors of this and the underlying packages remain reachable with
// errors.Is:
//
//	if errors.Is(err, modeller.ErrDomainNotFound) {
//		// load the domain first
//	}
//
// # Observability
//
// Validation runs and searches emit OpenTelemetry spans, and validation
// runs record OpenTelemetry metrics, when a tracer and meter are supplied
// with WithTracer and WithMeter.
//
// # Thread Safety
//
// Engine methods are safe for concurrent use. Assessments are independent
// values owned by the caller.
package modeller
