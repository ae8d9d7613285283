package pattern_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spyderisk/system-modeller-sub004/pattern"
)

func boundSet(roles ...string) func(string) bool {
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return func(r string) bool { return set[r] }
}

func TestNecessaryOrSufficient(t *testing.T) {
	groups := []pattern.Group{{Name: "g1", Roles: []string{"S1", "S2"}}, {Name: "g2", Roles: []string{"S3"}}}
	necessary := []string{"N1", "N2"}

	tests := []struct {
		name       string
		necessary  []string
		sufficient []pattern.Group
		bound      []string
		want       bool
	}{
		{"nothing declared", nil, nil, nil, true},
		{"necessary only, all bound", necessary, nil, []string{"N1", "N2"}, true},
		{"necessary only, one missing", necessary, nil, []string{"N1"}, false},
		{"sufficient only, group bound", nil, groups, []string{"S3"}, true},
		{"sufficient only, partial group", nil, groups, []string{"S1"}, false},
		{"both, necessary satisfied", necessary, groups, []string{"N1", "N2"}, true},
		{"both, sufficient instead", necessary, groups, []string{"N1", "S1", "S2"}, true},
		{"both, neither", necessary, groups, []string{"N1", "S1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pattern.NecessaryOrSufficient(tt.necessary, tt.sufficient, boundSet(tt.bound...))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNecessaryAndSufficient(t *testing.T) {
	groups := []pattern.Group{{Name: "g1", Roles: []string{"S1"}}}
	necessary := []string{"N1"}

	assert.True(t, pattern.NecessaryAndSufficient(nil, nil, boundSet()))
	assert.True(t, pattern.NecessaryAndSufficient(necessary, nil, boundSet("N1")))
	assert.False(t, pattern.NecessaryAndSufficient(necessary, groups, boundSet("N1")))
	assert.False(t, pattern.NecessaryAndSufficient(necessary, groups, boundSet("S1")))
	assert.True(t, pattern.NecessaryAndSufficient(necessary, groups, boundSet("N1", "S1")))
}

func TestWithPresencePolicy(t *testing.T) {
	def := pattern.Definition{
		Name: "Either",
		Roles: []pattern.RoleDefinition{
			{Name: "A"},
			{Name: "N", Presence: pattern.Necessary},
			{Name: "S", Presence: pattern.Optional},
		},
		SufficientGroups: []pattern.GroupDefinition{{Name: "alt", Roles: []string{"S"}}},
	}

	lenient, err := pattern.Compile(def)
	require.NoError(t, err)
	strict, err := pattern.Compile(def, pattern.WithPresencePolicy(pattern.NecessaryAndSufficient))
	require.NoError(t, err)

	assert.True(t, lenient.PresenceSatisfied(boundSet("A", "S")))
	assert.False(t, strict.PresenceSatisfied(boundSet("A", "S")))
	assert.True(t, strict.PresenceSatisfied(boundSet("A", "N", "S")))
	assert.False(t, lenient.PresenceSatisfied(boundSet("N", "S")), "mandatory role missing")
}
