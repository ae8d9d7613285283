package validator

import (
	"github.com/Spyderisk/system-modeller-sub004/domain"
	"github.com/Spyderisk/system-modeller-sub004/threat"
)

// assessRisk sets likelihood and risk levels by table lookup.
//
// A threat is as likely as its frequency while unresolved and at the lowest
// likelihood once resolved. A misbehaviour set is as likely as the likeliest
// threat directly causing it. Its risk is the domain's risk matrix entry for
// its impact and likelihood, and a threat's risk is the highest risk among
// the misbehaviour sets it causes. Nothing is propagated past direct causes.
func assessRisk(dm *domain.Model, m *threat.Model) {
	lowest, hasLowest := dm.Levels.Likelihood.Lowest()

	for _, t := range m.Threats() {
		t.Likelihood = t.Frequency
		if t.IsResolved() && hasLowest {
			t.Likelihood = lowest
		}
	}

	for _, ms := range m.MisbehaviourSets() {
		ms.Likelihood = threat.Level{}
		for _, uri := range ms.DirectCauses.Sorted() {
			t, ok := m.Threat(uri)
			if !ok || t.Likelihood.IsZero() {
				continue
			}
			if ms.Likelihood.IsZero() || t.Likelihood.Compare(ms.Likelihood) > 0 {
				ms.Likelihood = t.Likelihood
			}
		}
		ms.RiskLevel = threat.Level{}
		if !ms.ImpactLevel.IsZero() && !ms.Likelihood.IsZero() {
			ms.RiskLevel, _ = dm.Risk(ms.ImpactLevel, ms.Likelihood)
		}
	}

	for _, t := range m.Threats() {
		t.Risk = threat.Level{}
		for _, uri := range t.Misbehaviours.Sorted() {
			ms, ok := m.MisbehaviourSet(uri)
			if !ok || ms.RiskLevel.IsZero() {
				continue
			}
			if t.Risk.IsZero() || ms.RiskLevel.Compare(t.Risk) > 0 {
				t.Risk = ms.RiskLevel
			}
		}
	}
}
