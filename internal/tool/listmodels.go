package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/zenmcp/server-core/internal/dispatch"
)

func init() {
	register("listmodels", newListModelsTool)
}

// listModelsTool enumerates every model the server can currently route to,
// in auto-mode rank order. Restriction policy is already folded in by the
// registry's listing, so a model disallowed by *_ALLOWED_MODELS never
// appears here.
type listModelsTool struct {
	deps dispatch.Deps
}

func newListModelsTool(deps dispatch.Deps) dispatch.Tool { return &listModelsTool{deps: deps} }

func (t *listModelsTool) Name() string     { return "listmodels" }
func (t *listModelsTool) Category() string { return "utility" }
func (t *listModelsTool) Description() string {
	return "List every model available through the configured providers, ranked as auto-mode would rank them."
}

func (t *listModelsTool) Fields() map[string]dispatch.FieldSpec {
	return map[string]dispatch.FieldSpec{}
}

func (t *listModelsTool) Required() []string { return nil }

func (t *listModelsTool) Execute(ctx context.Context, in dispatch.Input) (*dispatch.Output, error) {
	if t.deps.ListAuto == nil {
		return &dispatch.Output{Content: []dispatch.ContentBlock{dispatch.TextBlock("no providers configured")}}, nil
	}

	caps := t.deps.ListAuto("", 0)
	if len(caps) == 0 {
		return &dispatch.Output{Content: []dispatch.ContentBlock{dispatch.TextBlock("no models available")}}, nil
	}

	var b strings.Builder
	for _, c := range caps {
		fmt.Fprintf(&b, "%s (%s)", c.ModelName, c.Provider)
		if len(c.Aliases) > 0 {
			fmt.Fprintf(&b, " aliases: %s", strings.Join(c.Aliases, ", "))
		}
		if c.ContextWindow > 0 {
			fmt.Fprintf(&b, " context: %d", c.ContextWindow)
		}
		b.WriteString("\n")
	}

	return &dispatch.Output{Content: []dispatch.ContentBlock{dispatch.TextBlock(b.String())}}, nil
}
