package pattern_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/pattern"
)

func hostedProcess() pattern.Definition {
	return pattern.Definition{
		Name: "HostedProcess",
		Roles: []pattern.RoleDefinition{
			{Name: "Host"},
			{Name: "Process"},
			{Name: "Data", Presence: pattern.Optional},
		},
		Links: []pattern.LinkDefinition{
			{From: "Host", Type: "hosts", To: "Process"},
			{From: "Process", Type: "uses", To: "Data"},
		},
	}
}

func TestCompile(t *testing.T) {
	tmpl, err := pattern.Compile(hostedProcess())
	require.NoError(t, err)

	assert.Equal(t, "HostedProcess", tmpl.Name())
	assert.Equal(t, []string{"Host", "Process", "Data"}, tmpl.Roles())
	assert.True(t, tmpl.IsMandatory("Host"))
	assert.False(t, tmpl.IsMandatory("Data"))
	assert.False(t, tmpl.IsMandatory("Nope"))
	assert.Equal(t, 2, tmpl.Index("Data"))
	assert.Equal(t, -1, tmpl.Index("Nope"))

	r, ok := tmpl.Role("Data")
	require.True(t, ok)
	assert.Equal(t, pattern.Optional, r.Presence)

	require.Len(t, tmpl.LinksFrom("Host"), 1)
	assert.Equal(t, "Process", tmpl.LinksFrom("Host")[0].To)
	require.Len(t, tmpl.LinksTo("Data"), 1)
	assert.Empty(t, tmpl.LinksTo("Host"))
	assert.Len(t, tmpl.Links(), 2)
}

func TestCompile_GettersReturnCopies(t *testing.T) {
	def := hostedProcess()
	def.DistinctGroups = []pattern.GroupDefinition{{Name: "d", Roles: []string{"Host", "Process"}}}
	tmpl, err := pattern.Compile(def)
	require.NoError(t, err)

	links := tmpl.Links()
	links[0].Type = "mutated"
	assert.Equal(t, "hosts", tmpl.Links()[0].Type)

	groups := tmpl.DistinctGroups()
	groups[0].Roles[0] = "mutated"
	assert.Equal(t, "Host", tmpl.DistinctGroups()[0].Roles[0])

	roles := tmpl.Roles()
	roles[0] = "mutated"
	assert.Equal(t, "Host", tmpl.Roles()[0])
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*pattern.Definition)
	}{
		{"empty name", func(d *pattern.Definition) { d.Name = "" }},
		{"no roles", func(d *pattern.Definition) { d.Roles = nil; d.Links = nil }},
		{"duplicate role", func(d *pattern.Definition) {
			d.Roles = append(d.Roles, pattern.RoleDefinition{Name: "Host"})
		}},
		{"unknown presence", func(d *pattern.Definition) { d.Roles[0].Presence = "sometimes" }},
		{"link to unknown role", func(d *pattern.Definition) {
			d.Links = append(d.Links, pattern.LinkDefinition{From: "Host", Type: "x", To: "Ghost"})
		}},
		{"link without type", func(d *pattern.Definition) { d.Links[0].Type = "" }},
		{"prohibited link unknown role", func(d *pattern.Definition) {
			d.ProhibitedLinks = []pattern.LinkDefinition{{From: "Ghost", Type: "x", To: "Host"}}
		}},
		{"prohibited node reuses template role", func(d *pattern.Definition) {
			d.ProhibitedNodes = []pattern.ProhibitedNodeDefinition{{
				Role:  "Host",
				Links: []pattern.LinkDefinition{{From: "Host", Type: "x", To: "Process"}},
			}}
		}},
		{"prohibited node link not touching it", func(d *pattern.Definition) {
			d.ProhibitedNodes = []pattern.ProhibitedNodeDefinition{{
				Role:  "Firewall",
				Links: []pattern.LinkDefinition{{From: "Host", Type: "x", To: "Process"}},
			}}
		}},
		{"prohibited node without links", func(d *pattern.Definition) {
			d.ProhibitedNodes = []pattern.ProhibitedNodeDefinition{{Role: "Firewall"}}
		}},
		{"match link to itself", func(d *pattern.Definition) {
			d.MatchLinks = []pattern.MatchLinkDefinition{{Role: "Host", Other: "Host", Type: "x"}}
		}},
		{"distinct group unknown role", func(d *pattern.Definition) {
			d.DistinctGroups = []pattern.GroupDefinition{{Name: "g", Roles: []string{"Host", "Ghost"}}}
		}},
		{"empty group", func(d *pattern.Definition) {
			d.DistinctGroups = []pattern.GroupDefinition{{Name: "g"}}
		}},
		{"sufficient group with mandatory role", func(d *pattern.Definition) {
			d.SufficientGroups = []pattern.GroupDefinition{{Name: "g", Roles: []string{"Host"}}}
		}},
		{"filter does not compile", func(d *pattern.Definition) { d.Roles[0].Filter = "asset.id ==" }},
		{"filter is not boolean", func(d *pattern.Definition) { d.Roles[0].Filter = "asset.id" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := hostedProcess()
			tt.mutate(&def)
			_, err := pattern.Compile(def)
			require.Error(t, err)
			assert.True(t, errors.Is(err, pattern.ErrInvalidTemplate))
		})
	}
}

func TestAccepts(t *testing.T) {
	def := hostedProcess()
	def.Roles[0].Filter = `asset.type == "Host" && asset.attributes.zone == "dmz"`
	tmpl, err := pattern.Compile(def)
	require.NoError(t, err)

	g := assetgraph.NewGraph()
	dmz, err := g.AddAsset(assetgraph.Asset{ID: "h1", Type: "Host", Attributes: map[string]any{"zone": "dmz"}})
	require.NoError(t, err)
	internal, err := g.AddAsset(assetgraph.Asset{ID: "h2", Type: "Host", Attributes: map[string]any{"zone": "lan"}})
	require.NoError(t, err)
	bare, err := g.AddAsset(assetgraph.Asset{ID: "h3", Type: "Host"})
	require.NoError(t, err)
	for _, n := range []*assetgraph.AssetNode{dmz, internal, bare} {
		n.AddRole("Host")
	}
	p, err := g.AddAsset(assetgraph.Asset{ID: "p1", Type: "Process"})
	require.NoError(t, err)
	p.AddRole("Process")

	assert.True(t, tmpl.Accepts("Host", dmz))
	assert.False(t, tmpl.Accepts("Host", internal))
	assert.False(t, tmpl.Accepts("Host", bare), "missing attribute rejects")
	assert.False(t, tmpl.Accepts("Process", dmz), "role not carried")
	assert.True(t, tmpl.Accepts("Process", p))
	assert.False(t, tmpl.Accepts("Process", nil))
}

func TestProhibitedNodeTemplateRoles(t *testing.T) {
	def := hostedProcess()
	def.ProhibitedNodes = []pattern.ProhibitedNodeDefinition{{
		Role: "Firewall",
		Links: []pattern.LinkDefinition{
			{From: "Firewall", Type: "protects", To: "Process"},
			{From: "Host", Type: "hosts", To: "Firewall"},
		},
	}}
	tmpl, err := pattern.Compile(def)
	require.NoError(t, err)

	pn := tmpl.ProhibitedNodes()
	require.Len(t, pn, 1)
	assert.Equal(t, []string{"Host", "Process"}, pn[0].TemplateRoles())
}

func TestPresenceSatisfied_Mandatory(t *testing.T) {
	tmpl, err := pattern.Compile(hostedProcess())
	require.NoError(t, err)

	bound := func(roles ...string) func(string) bool {
		set := map[string]bool{}
		for _, r := range roles {
			set[r] = true
		}
		return func(r string) bool { return set[r] }
	}

	assert.True(t, tmpl.PresenceSatisfied(bound("Host", "Process")))
	assert.True(t, tmpl.PresenceSatisfied(bound("Host", "Process", "Data")))
	assert.False(t, tmpl.PresenceSatisfied(bound("Host")))
}
