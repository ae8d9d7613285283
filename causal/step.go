package causal

import "github.com/Spyderisk/system-modeller-sub004/threat"

// Step is one threat seen as a link in the secondary effect chain: the
// misbehaviours that cause it and the misbehaviours it causes.
type Step struct {
	// ID is the threat URI.
	ID string `json:"id"`

	// Cause holds the misbehaviour sets that make the threat a secondary
	// effect. It is empty for primary threats.
	Cause threat.URISet `json:"cause"`

	// Effect holds the misbehaviour sets the threat causes.
	Effect threat.URISet `json:"effect"`

	// Active is false once the threat is resolved.
	Active bool `json:"active"`
}

// IsPrimaryThreat reports whether the step has no causes.
func (s Step) IsPrimaryThreat() bool { return s.Cause.Len() == 0 }

// StepFromThreat builds the step of t from its secondary effect conditions
// and misbehaviours. The step is active while t is unresolved.
func StepFromThreat(t *threat.Threat) Step {
	return Step{
		ID:     t.URI,
		Cause:  t.SecondaryEffectConditions.Clone(),
		Effect: t.Misbehaviours.Clone(),
		Active: !t.IsResolved(),
	}
}

// StepsFromModel returns the steps of every threat in m, sorted by threat URI.
func StepsFromModel(m *threat.Model) []Step {
	threats := m.Threats()
	out := make([]Step, 0, len(threats))
	for _, t := range threats {
		out = append(out, StepFromThreat(t))
	}
	return out
}
