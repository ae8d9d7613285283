// Package validator runs a domain model against a system model.
//
// A run builds the asset graph, assigns domain roles to its assets, and
// searches for every threat of the domain anchored at each asset qualifying
// for the threat's threatened role. Searches run on a bounded pool. Their
// matches are instantiated into a threat model, the caller's control set
// proposals and acceptances are applied, and the secondary effect graph and
// risk vector are derived from the result.
//
// Basic usage:
//
//	v, err := validator.New(model,
//	    validator.WithLogger(logger),
//	    validator.WithConcurrency(8),
//	)
//	if err != nil {
//	    return err
//	}
//	assessment, err := v.Run(ctx, validator.Input{Assets: assets, Relations: relations})
package validator
