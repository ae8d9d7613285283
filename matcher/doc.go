// Package matcher finds every match of a pattern template in an asset graph.
//
// The search is constraint propagation plus backtracking. A State maps each
// template role to the assets still feasible for it. Starting from an
// optional anchor, candidates are propagated along the template's links over
// real graph links until nothing changes, then pruned against prohibited
// links, prohibited nodes, match links and distinct groups relative to the
// roles already narrowed to one asset. A branch whose required role runs out
// of candidates is dropped. Otherwise the search splits on the first role
// with several candidates, mandatory roles first, and recurses on a clone
// of the state per candidate. Complete assignments are checked once more
// with ValidateAssignment before they are reported.
//
// Optional and necessary roles are bound whenever a consistent asset exists
// and are left out of the match otherwise. Whether a match missing some of
// them still counts is decided by the template's presence policy.
//
// Usage:
//
//	m := matcher.New(matcher.WithLogger(logger), matcher.WithMaxExpansions(50000))
//	res, err := m.Match(ctx, graph, tmpl, &matcher.Anchor{Role: "Host", AssetID: "h1"})
//	if err != nil {
//	    return err
//	}
//	if res.Incomplete {
//	    logger.Warn("search stopped early", "reason", res.Reason)
//	}
//	for _, match := range res.Matches {
//	    fmt.Println(match.Bindings)
//	}
package matcher
