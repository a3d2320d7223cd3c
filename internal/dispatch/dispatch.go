// The Dispatcher is the tool-call entry point: it publishes tool
// descriptors, validates call arguments against each tool's merged JSON
// Schema (github.com/santhosh-tekuri/jsonschema/v6), and executes the
// matching strategy behind a panic-recovery boundary.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/zenmcp/server-core/internal/agenterrors"
	"github.com/zenmcp/server-core/internal/zlog"
)

// Descriptor is what ListTools publishes to the MCP host: a name,
// description, and the fully merged input schema.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Dispatcher owns the tool registration table and per-tool compiled
// schemas.
type Dispatcher struct {
	logger   zlog.Logger
	tools    map[string]Tool
	schemas  map[string]*jsonschema.Schema
	disabled map[string]struct{}
}

// New builds a Dispatcher. disabledTools implements the DISABLED_TOOLS
// env var: a tool listed there is omitted from ListTools and rejected by
// CallTool as if it were never registered.
func New(logger zlog.Logger, disabledTools []string) *Dispatcher {
	if logger == nil {
		logger = zlog.Noop{}
	}
	disabled := make(map[string]struct{}, len(disabledTools))
	for _, name := range disabledTools {
		disabled[strings.TrimSpace(name)] = struct{}{}
	}
	return &Dispatcher{
		logger:   logger,
		tools:    map[string]Tool{},
		schemas:  map[string]*jsonschema.Schema{},
		disabled: disabled,
	}
}

// Register compiles t's merged schema and adds it to the dispatch table.
// Registration happens once at startup from cmd/zenmcpd/main.go; a
// compile failure is a programming error in the tool's own field
// declarations, so Register panics rather than returning an error to the
// startup loop.
func (d *Dispatcher) Register(t Tool) {
	schemaDoc := BuildSchema(t.Fields(), t.Required())

	// jsonschema/v6 requires decoded-JSON types (map[string]interface{},
	// []interface{}, ...); round-trip through JSON to normalize the
	// []string values BuildSchema produces (e.g. enum, required).
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		panic(fmt.Sprintf("dispatch: tool %q has an invalid schema: %v", t.Name(), err))
	}
	normalizedDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("dispatch: tool %q has an invalid schema: %v", t.Name(), err))
	}

	url := "mem://tool/" + t.Name()
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, normalizedDoc); err != nil {
		panic(fmt.Sprintf("dispatch: tool %q has an invalid schema: %v", t.Name(), err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("dispatch: tool %q schema failed to compile: %v", t.Name(), err))
	}

	d.tools[t.Name()] = t
	d.schemas[t.Name()] = schema
}

// ListTools returns every registered, non-disabled tool's descriptor,
// sorted by name for deterministic output.
func (d *Dispatcher) ListTools() []Descriptor {
	out := make([]Descriptor, 0, len(d.tools))
	for name, t := range d.tools {
		if _, off := d.disabled[name]; off {
			continue
		}
		out = append(out, Descriptor{
			Name:        name,
			Description: t.Description(),
			InputSchema: BuildSchema(t.Fields(), t.Required()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CallTool validates arguments against the named tool's schema and
// executes it, recovering any panic raised during Execute into an
// INTERNAL coded error; no panic ever crosses the tool-call boundary.
func (d *Dispatcher) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (out *Output, err error) {
	defer d.recoverPanic(&err, name)

	if _, off := d.disabled[name]; off {
		return nil, agenterrors.New(agenterrors.SchemaInvalid, fmt.Sprintf("tool %q is disabled", name), nil)
	}
	t, ok := d.tools[name]
	if !ok {
		return nil, agenterrors.New(agenterrors.SchemaInvalid, fmt.Sprintf("unknown tool %q", name), nil)
	}

	if arguments == nil {
		arguments = map[string]interface{}{}
	}
	if verr := d.schemas[name].Validate(arguments); verr != nil {
		return nil, agenterrors.SchemaInvalidErr(fieldPath(verr), verr)
	}

	return t.Execute(ctx, NewInput(arguments))
}

// recoverPanic captures the stack, logs it, and converts the panic into a
// coded INTERNAL error instead of letting it unwind into the MCP
// transport.
func (d *Dispatcher) recoverPanic(errPtr *error, toolName string) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())
		correlationID := uuid.NewString()
		d.logger.Error(context.Background(), "panic recovered during tool execution",
			zlog.F("tool", toolName),
			zlog.F("panic_value", fmt.Sprintf("%v", r)),
			zlog.F("correlation_id", correlationID),
			zlog.F("stack_trace", truncateStack(stack)),
		)
		*errPtr = agenterrors.InternalErr(correlationID, fmt.Errorf("panic: %v", r))
	}
}

func truncateStack(s string) string {
	const max = 2000
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// fieldPath extracts a JSON-pointer-shaped field path from a jsonschema
// validation error, preferring the deepest leaf cause (the most specific
// failing field).
func fieldPath(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return ""
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if len(ve.InstanceLocation) == 0 {
		return "/"
	}
	return "/" + strings.Join(ve.InstanceLocation, "/")
}
