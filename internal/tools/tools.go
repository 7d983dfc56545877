// Package tools builds the per-turn registry of callable tools, scoped to
// one verified identity and its entitlement tier.
package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pennywise/pennywise/internal/domain"
	"github.com/pennywise/pennywise/internal/finance"
	"github.com/pennywise/pennywise/internal/llm"
	"github.com/pennywise/pennywise/internal/logging"
)

// Capability classes. Read tools are always available, mutate tools always
// route through the confirmation gate, premium tools exist only for
// entitled identities.
type Capability string

const (
	CapabilityRead    Capability = "read"
	CapabilityMutate  Capability = "mutate"
	CapabilityPremium Capability = "premium"
)

// Spec is one callable tool: schema plus executor. The executor is a
// closure over the owning identity's userID, so no call can cross the user
// scope boundary.
type Spec struct {
	Name        string
	Description string
	InputSchema string
	Capability  Capability
	Execute     func(ctx context.Context, input json.RawMessage) (domain.ToolOutput, error)
}

// Registry holds the tools available to a single turn.
type Registry struct {
	tools map[string]Spec
	log   *logging.Logger
}

// Build assembles the registry for one identity. Premium tools are absent
// (not merely disabled) when the identity is not entitled, so the model
// never sees them as callable options.
func Build(backend finance.Backend, ident domain.Identity, log *logging.Logger) *Registry {
	r := &Registry{
		tools: make(map[string]Spec),
		log:   log.Sub("tools"),
	}

	r.register(listExpensesTool(backend, ident.UserID))
	r.register(budgetSummaryTool(backend, ident.UserID))
	r.register(addExpenseTool(backend, ident.UserID))
	r.register(deleteExpensesTool(backend, ident.UserID))
	r.register(setBudgetTool(backend, ident.UserID))

	if ident.Entitled {
		r.register(spendingInsightsTool(backend, ident.UserID))
	}

	return r
}

func (r *Registry) register(s Spec) {
	r.tools[s.Name] = s
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Spec, bool) {
	s, ok := r.tools[name]
	return s, ok
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns LLM-ready tool definitions.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return defs
}

// Invoke runs a tool and always produces an encoded ToolOutput. Executor
// failures are recovered into error-status outputs so one bad call never
// aborts the stream.
func (r *Registry) Invoke(ctx context.Context, name string, input json.RawMessage) json.RawMessage {
	spec, ok := r.tools[name]
	if !ok {
		return domain.MustEncodeToolOutput(domain.ErrorOutput{Message: "unknown tool: " + name})
	}

	out, err := spec.Execute(ctx, input)
	if err != nil {
		r.log.Warn().Err(err).Str("tool", name).Msg("tool execution failed")
		return domain.MustEncodeToolOutput(domain.ErrorOutput{Message: err.Error()})
	}
	return domain.MustEncodeToolOutput(out)
}
