package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		flag     string
		expected bool
	}{
		{
			name:     "known flag set to true returns true",
			registry: New(map[string]bool{FlagPruneCache: true}),
			flag:     FlagPruneCache,
			expected: true,
		},
		{
			name:     "known flag set to false returns false",
			registry: New(map[string]bool{FlagPruneCache: false}),
			flag:     FlagPruneCache,
			expected: false,
		},
		{
			name:     "names are case insensitive",
			registry: New(map[string]bool{" Prune-Cache ": true}),
			flag:     FlagPruneCache,
			expected: true,
		},
		{
			name:     "unknown flag is dropped",
			registry: New(map[string]bool{"feature-a": true}),
			flag:     "feature-a",
			expected: false,
		},
		{
			name:     "nil registry returns false",
			registry: nil,
			flag:     FlagPruneCache,
			expected: false,
		},
		{
			name:     "nil flags map returns false",
			registry: New(nil),
			flag:     FlagPruneCache,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.registry.Enabled(tt.flag))
		})
	}
}

func TestRegistry_All(t *testing.T) {
	r := New(map[string]bool{FlagPruneCache: true, "bogus": true})
	all := r.All()
	require.Equal(t, map[string]bool{FlagPruneCache: true}, all)

	all[FlagPruneCache] = false
	require.True(t, r.Enabled(FlagPruneCache), "All must return a copy")

	var nilRegistry *Registry
	require.Empty(t, nilRegistry.All())
}
