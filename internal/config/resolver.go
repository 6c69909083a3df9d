package config

import (
	"cmp"
	"slices"

	"github.com/flemzord/sitterd/internal/core"
)

// namespaceOrder ranks module namespaces so that providers load before the
// modules that resolve them from the service registry at Provision time.
var namespaceOrder = map[string]int{
	"store":       0,
	"blob":        1,
	"maintenance": 2,
	"scheduler":   3,
	"gateway":     4,
}

// Resolve returns the module IDs from the configuration in load order:
// by namespace rank, then by ID. Unknown namespaces load last.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(rank(a), rank(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

func rank(id string) int {
	if r, ok := namespaceOrder[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return len(namespaceOrder)
}
