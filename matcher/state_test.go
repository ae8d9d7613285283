package matcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/matcher"
)

func ids(nodes []*assetgraph.AssetNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestState_AbsentIsUnconstrained(t *testing.T) {
	st := matcher.NewState(hostsTemplate(t))

	assert.False(t, st.Has("A"))
	assert.Equal(t, -1, st.Count("A"))
	assert.False(t, st.Invalid())
	assert.False(t, st.Restrict("A", func(*assetgraph.AssetNode) bool { return false }))
	assert.False(t, st.Has("A"))

	st.Set("A", nil)
	assert.True(t, st.Invalid())
}

func TestState_RestrictAndSingleton(t *testing.T) {
	g := hostsGraph(t)
	h1, _ := g.Node("h1")
	h2, _ := g.Node("h2")

	st := matcher.NewState(hostsTemplate(t))
	st.Set("A", []*assetgraph.AssetNode{h2, h1})

	got, ok := st.Candidates("A")
	require.True(t, ok)
	assert.Equal(t, []string{"h1", "h2"}, ids(got))
	_, single := st.Singleton("A")
	assert.False(t, single)

	assert.False(t, st.Restrict("A", func(*assetgraph.AssetNode) bool { return true }))
	assert.True(t, st.Restrict("A", func(n *assetgraph.AssetNode) bool { return n.ID == "h2" }))

	n, single := st.Singleton("A")
	require.True(t, single)
	assert.Equal(t, "h2", n.ID)
	assert.True(t, st.Contains("A", "h2"))
	assert.False(t, st.Contains("A", "h1"))
	assert.Equal(t, map[string]string{"A": "h2"}, st.Bindings())
}

func TestState_Exclude(t *testing.T) {
	g := hostsGraph(t)
	p1, _ := g.Node("p1")

	st := matcher.NewState(hostsTemplate(t))
	st.Set("B", nil)
	assert.True(t, st.Invalid())

	st.Exclude("B")
	assert.True(t, st.IsExcluded("B"))
	assert.False(t, st.Has("B"))
	assert.False(t, st.Invalid())

	st.Bind("A", p1)
	assert.Equal(t, map[string]string{"A": "p1"}, st.Bindings())
}

func TestState_Bound(t *testing.T) {
	g := hostsGraph(t)
	h1, _ := g.Node("h1")
	p1, _ := g.Node("p1")

	st := matcher.NewState(hostsTemplate(t))
	st.Set("A", []*assetgraph.AssetNode{h1})
	_, single := st.Singleton("A")
	assert.True(t, single)
	assert.False(t, st.IsBound("A"), "narrowed to one candidate is not bound")

	clone := st.Clone()
	clone.Bind("B", p1)
	assert.True(t, clone.IsBound("B"))
	assert.False(t, st.IsBound("B"))
}

func TestState_CloneIsolation(t *testing.T) {
	g := hostsGraph(t)
	h1, _ := g.Node("h1")
	h2, _ := g.Node("h2")
	p1, _ := g.Node("p1")

	orig := matcher.NewState(hostsTemplate(t))
	orig.Set("A", []*assetgraph.AssetNode{h1, h2})

	t.Run("clone mutations do not reach the original", func(t *testing.T) {
		clone := orig.Clone()
		clone.Restrict("A", func(n *assetgraph.AssetNode) bool { return n.ID == "h1" })
		clone.Set("B", []*assetgraph.AssetNode{p1})
		clone.Exclude("A")

		assert.Equal(t, 2, orig.Count("A"))
		assert.False(t, orig.Has("B"))
		assert.False(t, orig.IsExcluded("A"))
	})

	t.Run("original mutations do not reach the clone", func(t *testing.T) {
		clone := orig.Clone()
		orig.Restrict("A", func(n *assetgraph.AssetNode) bool { return n.ID == "h2" })
		orig.Bind("B", p1)

		got, _ := clone.Candidates("A")
		assert.Equal(t, []string{"h1", "h2"}, ids(got))
		assert.False(t, clone.Has("B"))
		assert.Equal(t, 1, orig.Count("A"))
	})
}
