// Package tools implements the assistant's closed tool set: read-only catalog
// lookups exposed to the model through a validating registry.
//
// The registry is the only dispatch path for tool execution. Arguments are
// validated against a JSON schema derived from each tool's typed input before
// the handler runs, and every failure is returned as a structured Result the
// model can react to rather than a Go error.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/log"
)

// Registry holds the closed set of tools available to the model.
// The set is fixed after construction; Execute never dispatches outside it.
// Safe for concurrent use once construction is complete.
type Registry struct {
	logger log.Logger
	tools  map[string]*tool
}

type tool struct {
	name        string
	description string
	schema      *jsonschema.Resolved
	run         func(ctx context.Context, raw json.RawMessage) Result
	declare     func(g *genkit.Genkit) ai.Tool
}

// NewRegistry creates an empty registry.
func NewRegistry(logger log.Logger) *Registry {
	return &Registry{
		logger: logger,
		tools:  make(map[string]*tool),
	}
}

// Register adds a tool with a typed input. The JSON schema for In is derived
// once at registration; arguments failing validation produce an
// invalid_argument result without invoking the handler.
func Register[In any](r *Registry, name, description string, fn func(context.Context, In) Result) error {
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("deriving schema for tool %q: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolving schema for tool %q: %w", name, err)
	}

	run := func(ctx context.Context, raw json.RawMessage) Result {
		var in In
		if len(raw) > 0 {
			var generic any
			if err := json.Unmarshal(raw, &generic); err != nil {
				return failure(ErrTypeInvalidArgument, fmt.Sprintf("malformed arguments: %v", err))
			}
			if generic != nil {
				if err := resolved.Validate(generic); err != nil {
					return failure(ErrTypeInvalidArgument, fmt.Sprintf("invalid arguments: %v", err))
				}
			}
			if err := json.Unmarshal(raw, &in); err != nil {
				return failure(ErrTypeInvalidArgument, fmt.Sprintf("invalid arguments: %v", err))
			}
		}
		return fn(ctx, in)
	}

	r.tools[name] = &tool{
		name:        name,
		description: description,
		schema:      resolved,
		run:         run,
		declare: func(g *genkit.Genkit) ai.Tool {
			return genkit.DefineTool(g, name, description,
				func(tctx *ai.ToolContext, in In) (Result, error) {
					return fn(tctx.Context, in), nil
				})
		},
	}
	return nil
}

// Execute runs a tool by name with the raw argument value produced by the
// model. Unknown tool names and schema violations come back as
// invalid_argument results so the loop can feed them to the model.
func (r *Registry) Execute(ctx context.Context, name string, args any) Result {
	t, ok := r.tools[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return failure(ErrTypeInvalidArgument, fmt.Sprintf("unknown tool %q", name))
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return failure(ErrTypeInvalidArgument, fmt.Sprintf("unencodable arguments: %v", err))
	}

	res := t.run(ctx, raw)
	if res.Status == StatusError {
		r.logger.Debug("tool returned error result",
			"tool", name,
			"error_type", res.Error.ErrorType,
			"message", res.Error.Message,
		)
	}
	return res
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declare registers every tool's declaration with Genkit so the model sees
// the full tool schema. Execution still goes through Execute: generation runs
// with tool requests returned to the caller, not auto-dispatched.
func (r *Registry) Declare(g *genkit.Genkit) []ai.ToolRef {
	refs := make([]ai.ToolRef, 0, len(r.tools))
	for _, name := range r.Names() {
		refs = append(refs, r.tools[name].declare(g))
	}
	return refs
}
