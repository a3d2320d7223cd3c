// Package tool holds the concrete tool strategies (chat, thinkdeep,
// listmodels, ...). Registration is a compile-time map[string]Factory
// populated by each tool file's init(), not reflection.
package tool

import "github.com/zenmcp/server-core/internal/dispatch"

// Factory builds one tool instance bound to the shared Deps.
type Factory func(deps dispatch.Deps) dispatch.Tool

var factories = map[string]Factory{}

func register(name string, f Factory) {
	if _, dup := factories[name]; dup {
		panic("tool: duplicate registration for " + name)
	}
	factories[name] = f
}

// All builds every registered tool bound to deps, for the dispatcher to
// Register at startup.
func All(deps dispatch.Deps) []dispatch.Tool {
	out := make([]dispatch.Tool, 0, len(factories))
	for _, f := range factories {
		out = append(out, f(deps))
	}
	return out
}
