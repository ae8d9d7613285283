package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Spyderisk/system-modeller-sub004/domain"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.2.0", "1.10.0", -1},
		{"v2.0.0", "1.9.9", 1},
		{"1.0.0", "nightly", 1},
		{"alpha", "beta", -1},
	}
	for _, tt := range tests {
		got := domain.CompareVersions(tt.a, tt.b)
		switch {
		case tt.want < 0:
			assert.Negative(t, got, "%s vs %s", tt.a, tt.b)
		case tt.want > 0:
			assert.Positive(t, got, "%s vs %s", tt.a, tt.b)
		default:
			assert.Zero(t, got, "%s vs %s", tt.a, tt.b)
		}
	}
}

func TestLatest(t *testing.T) {
	models := []*domain.Model{
		{Name: "network", Version: "1.2.0"},
		{Name: "network", Version: "1.10.0"},
		{Name: "cloud", Version: "9.0.0"},
	}

	m, ok := domain.Latest(models, "network")
	assert.True(t, ok)
	assert.Equal(t, "1.10.0", m.Version)

	_, ok = domain.Latest(models, "iot")
	assert.False(t, ok)
}
