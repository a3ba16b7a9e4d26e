// Package flags holds opt-in behaviour switches read from the "flags"
// section of the config file. Unknown names are off.
package flags

import (
	"maps"
	"slices"
	"strings"

	"github.com/zjrosen/flowsync/internal/log"
)

// FlagPruneCache drops cache entries for files that disappeared from the
// definitions root at the end of a complete batch pass.
const FlagPruneCache = "prune-cache"

// Known lists every flag this build understands.
var Known = []string{FlagPruneCache}

// Registry is a read-only set of flags.
type Registry struct {
	flags map[string]bool
}

// New copies flags into a Registry. Names are matched case-insensitively.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	for name, on := range flags {
		name = strings.ToLower(strings.TrimSpace(name))
		if !slices.Contains(Known, name) {
			log.Warn(log.CatConfig, "unknown feature flag ignored", "flag", name)
			continue
		}
		r.flags[name] = on
	}
	if len(r.flags) > 0 {
		log.Debug(log.CatConfig, "feature flags", "flags", r.All())
	}
	return r
}

// Enabled reports whether name is on. A nil Registry has every flag off.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[name]
}

// All returns a copy of the configured flags.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}
