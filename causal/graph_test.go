package causal_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spyderisk/system-modeller-sub004/causal"
	"github.com/Spyderisk/system-modeller-sub004/threat"
)

func step(id string, cause, effect []string, active bool) causal.Step {
	return causal.Step{ID: id, Cause: threat.NewURISet(cause...), Effect: threat.NewURISet(effect...), Active: active}
}

// chain: T1 -> M1 -> T2 -> M2 -> T3 -> M3, plus T3 -> M1 closing a cycle,
// and an unrelated primary threat T4 -> M4.
func chain() []causal.Step {
	return []causal.Step{
		step("T1", nil, []string{"M1"}, true),
		step("T2", []string{"M1"}, []string{"M2"}, false),
		step("T3", []string{"M2"}, []string{"M3", "M1"}, true),
		step("T4", nil, []string{"M4"}, true),
	}
}

func TestStep_IsPrimaryThreat(t *testing.T) {
	assert.True(t, step("T", nil, []string{"M"}, true).IsPrimaryThreat())
	assert.True(t, causal.Step{ID: "T"}.IsPrimaryThreat())
	assert.False(t, step("T", []string{"M"}, nil, true).IsPrimaryThreat())
}

func TestStepFromThreat(t *testing.T) {
	th := threat.New("system#T", "domain#T", threat.KindThreat)
	th.Misbehaviours.Add("M1")
	s := causal.StepFromThreat(th)
	assert.True(t, s.IsPrimaryThreat())
	assert.True(t, s.Active)
	assert.True(t, s.Effect.Has("M1"))

	th.SecondaryEffectConditions.Add("M0")
	assert.True(t, s.IsPrimaryThreat(), "step holds a copy")
	s = causal.StepFromThreat(th)
	assert.False(t, s.IsPrimaryThreat())
	assert.Equal(t, s.Cause.Len() == 0, s.IsPrimaryThreat())

	reason := "ok"
	th.SetAcceptanceJustification(nil, &reason)
	assert.False(t, causal.StepFromThreat(th).Active)
}

func TestGraph_Classification(t *testing.T) {
	g := causal.Build(chain())

	assert.Equal(t, []string{"T1", "T4"}, g.PrimaryThreats())
	assert.Equal(t, []string{"T2", "T3"}, g.SecondaryThreats())
	assert.Equal(t, []string{"T1", "T3", "T4"}, g.ActiveSteps())
	assert.Equal(t, []string{"M1", "M2", "M3", "M4"}, g.Misbehaviours())

	for _, s := range g.Steps() {
		assert.Equal(t, s.Cause.Len() == 0, s.IsPrimaryThreat(), s.ID)
	}

	s, ok := g.Step("T3")
	require.True(t, ok)
	assert.True(t, s.Effect.Has("M3"))
	_, ok = g.Step("nope")
	assert.False(t, ok)
}

func TestGraph_RootCauses(t *testing.T) {
	g := causal.Build(append(chain(), step("T5", []string{"M9"}, nil, true)))

	assert.Equal(t, []causal.NodeRef{
		{Kind: causal.NodeThreat, ID: "T1"},
		{Kind: causal.NodeThreat, ID: "T4"},
		{Kind: causal.NodeMisbehaviour, ID: "M9"},
	}, g.RootCauses())
}

func TestGraph_Edges(t *testing.T) {
	g := causal.Build(chain())

	assert.Equal(t, []string{"T1", "T3"}, g.DirectCauses("M1"))
	assert.Equal(t, []string{"T2"}, g.DirectEffects("M1"))
	assert.Empty(t, g.DirectEffects("M3"))
	assert.Nil(t, g.DirectCauses("unknown"))
}

func TestGraph_AncestorsWithCycle(t *testing.T) {
	g := causal.Build(chain())

	assert.Equal(t, []string{"T1", "T2", "T3"}, g.Ancestors("M3"))
	assert.Equal(t, []string{"T1", "T2", "T3"}, g.Ancestors("M1"))
	assert.Equal(t, []string{"T1"}, g.RootCausesOf("M3"))
	assert.Equal(t, []string{"T4"}, g.Ancestors("M4"))
	assert.Nil(t, g.Ancestors("unknown"))
}

func TestGraph_PureCycleHasNoRoot(t *testing.T) {
	g := causal.Build([]causal.Step{
		step("A", []string{"M2"}, []string{"M1"}, true),
		step("B", []string{"M1"}, []string{"M2"}, true),
	})
	assert.Empty(t, g.RootCauses())
	assert.Empty(t, g.PrimaryThreats())
	assert.Equal(t, []string{"A", "B"}, g.Ancestors("M1"))
	assert.Empty(t, g.RootCausesOf("M1"))
}

func TestGraph_MergesDuplicateSteps(t *testing.T) {
	g := causal.Build([]causal.Step{
		step("T", nil, []string{"M1"}, false),
		step("T", []string{"M0"}, []string{"M2"}, true),
	})
	steps := g.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, []string{"M1", "M2"}, steps[0].Effect.Sorted())
	assert.True(t, steps[0].Active)
	assert.False(t, steps[0].IsPrimaryThreat())
}

func TestGraph_Annotate(t *testing.T) {
	g := causal.Build(chain())

	m1 := threat.NewMisbehaviourSet("M1", "mb", "a")
	m3 := threat.NewMisbehaviourSet("M3", "mb", "a")
	lonely := threat.NewMisbehaviourSet("M8", "mb", "a")
	lonely.DirectCauses.Add("stale")

	g.Annotate([]*threat.MisbehaviourSet{m1, m3, lonely})

	assert.Equal(t, []string{"T1", "T3"}, m1.DirectCauses.Sorted())
	assert.Equal(t, []string{"T2"}, m1.IndirectCauses.Sorted())
	assert.Equal(t, []string{"T1"}, m1.RootCauses.Sorted())
	assert.Equal(t, []string{"T2"}, m1.DirectEffects.Sorted())

	assert.Equal(t, []string{"T3"}, m3.DirectCauses.Sorted())
	assert.Equal(t, []string{"T1", "T2"}, m3.IndirectCauses.Sorted())
	assert.Equal(t, []string{"T1"}, m3.RootCauses.Sorted())

	assert.Zero(t, lonely.DirectCauses.Len())
}

func TestStep_JSON(t *testing.T) {
	s := step("T", []string{"b", "a"}, []string{"c"}, true)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"T","cause":["a","b"],"effect":["c"],"active":true}`, string(data))
}

func TestStepsFromModel(t *testing.T) {
	m := threat.NewModel()
	t2 := threat.New("T2", "p", threat.KindThreat)
	t2.SecondaryEffectConditions.Add("M1")
	t1 := threat.New("T1", "p", threat.KindThreat)
	t1.Misbehaviours.Add("M1")
	m.AddThreat(t2)
	m.AddThreat(t1)

	steps := causal.StepsFromModel(m)
	require.Len(t, steps, 2)
	assert.Equal(t, "T1", steps[0].ID)
	assert.Equal(t, []string{"T2"}, causal.Build(steps).DirectEffects("M1"))
}
