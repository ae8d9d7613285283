// Package threat defines the entities instantiated when a domain pattern
// matches a system model: threats, misbehaviour sets, control sets and
// control strategies.
//
// # Resolution
//
// A threat is resolved when it carries an acceptance justification, or when
// one of its control strategies is enabled and classified for it as BLOCK or
// MITIGATE. A strategy is enabled when all of its mandatory control sets are
// proposed. Resolution is computed on demand from the current control set
// state and is never stored.
//
// Compliance threats cannot be accepted. SetAcceptanceJustification logs and
// discards such attempts, so generic code may call it on any threat.
//
// # Control set state
//
// A control set may be proposed, or proposed and still in progress. Any
// operation that would make it in progress without being proposed fails
// with ErrWorkInProgressNotProposed and leaves it unchanged.
//
// Example:
//
//	cs, _ := threat.NewControlSet(threat.ControlSetSpec{URI: "system#CS-Firewall-h1", Control: "Firewall"})
//	csg := threat.NewControlStrategy("system#CSG-1", "domain#CSG-Firewall")
//	csg.AddMandatory(cs)
//
//	t := threat.New("system#T-1", "domain#T-Exposure", threat.KindThreat)
//	t.AddControlStrategy(csg)
//	csg.SetType(t.URI, threat.StrategyBlock)
//
//	_ = cs.SetProposed(true)
//	fmt.Println(t.IsResolved()) // true
package threat
