package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pennywise/pennywise/internal/domain"
	"github.com/pennywise/pennywise/internal/llm"
	"github.com/pennywise/pennywise/internal/logging"
	"github.com/pennywise/pennywise/internal/tools"
)

// Defaults for the step loop's two ceilings.
const (
	DefaultMaxRounds      = 10
	DefaultHistoryCeiling = 40
)

// Config configures the runner.
type Config struct {
	Model          string
	MaxTokens      int
	Temperature    *float64
	MaxRounds      int
	HistoryCeiling int
}

func (c Config) maxRounds() int {
	if c.MaxRounds > 0 {
		return c.MaxRounds
	}
	return DefaultMaxRounds
}

func (c Config) historyCeiling() int {
	if c.HistoryCeiling > 0 {
		return c.HistoryCeiling
	}
	return DefaultHistoryCeiling
}

// Runner drives one conversational turn: it resolves pending
// confirmations, then alternates model rounds and tool execution until the
// model answers without calling tools or the round budget runs out.
type Runner struct {
	cfg    Config
	client llm.Client
	log    *logging.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg Config, client llm.Client, log *logging.Logger) *Runner {
	return &Runner{cfg: cfg, client: client, log: log.Sub("agent")}
}

// Run executes one turn. conv must already contain the appended user
// message; the returned assistant message is the caller's to append and
// persist. Events stream to sink as they happen. A nil error means a
// finish frame was emitted; a non-nil error means an error frame was.
func (r *Runner) Run(ctx context.Context, conv *domain.Conversation, ident domain.Identity, reg *tools.Registry, directive *ConfirmDirective, sink Sink) (domain.Message, error) {
	start := time.Now()
	sink(Event{Type: EventStart})

	r.log.Info().
		Str("conversationId", conv.ID).
		Str("userId", ident.UserID).
		Int("historyLen", len(conv.Messages)).
		Msg("turn started")

	var parts []domain.Part
	deduper := newOutputDeduper()

	// Pending proposals from the previous turn are settled before the
	// model sees anything. Declines and unrelated replies execute nothing.
	confirmed := r.runConfirmations(ctx, conv, reg, directive, deduper, sink, &parts)

	history := convertHistory(truncateHistory(conv.Messages, r.cfg.historyCeiling()))
	for _, m := range confirmed {
		history = appendMerged(history, m)
	}

	system := BuildSystemPrompt(PromptConfig{Identity: ident, ToolNames: reg.Names()})

	rounds := 0
	for ; rounds < r.cfg.maxRounds(); rounds++ {
		if err := ctx.Err(); err != nil {
			sink(Event{Type: EventError, Error: "turn canceled"})
			return domain.Message{}, err
		}

		resp, err := r.streamRound(ctx, llm.CompletionRequest{
			Model:       r.cfg.Model,
			System:      system,
			Messages:    history,
			Tools:       reg.Definitions(),
			MaxTokens:   r.cfg.MaxTokens,
			Temperature: r.cfg.Temperature,
		}, sink)
		if err != nil {
			sink(Event{Type: EventError, Error: err.Error()})
			return domain.Message{}, err
		}

		if resp.Content != "" {
			parts = append(parts, domain.TextPart(resp.Content))
		}
		history = append(history, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			break
		}

		results := r.executeRound(ctx, reg, resp.ToolCalls, deduper, sink, &parts)
		history = append(history, llm.Message{Role: llm.RoleUser, ToolResults: results})
	}

	sink(Event{Type: EventFinish})

	r.log.Info().
		Str("conversationId", conv.ID).
		Int("rounds", rounds+1).
		Dur("duration", time.Since(start)).
		Msg("turn finished")

	return domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleAssistant,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// runConfirmations settles the previous turn's pending proposals. Approved
// proposals re-invoke the tool with confirmed set and stream a full frame
// lifecycle. Declined proposals never invoke anything and emit no tool
// frames: the model is told in plain text so it can narrate the
// cancellation. Returns the model-visible messages for the settlement.
func (r *Runner) runConfirmations(ctx context.Context, conv *domain.Conversation, reg *tools.Registry, directive *ConfirmDirective, deduper *outputDeduper, sink Sink, parts *[]domain.Part) []llm.Message {
	lastUser := ""
	if n := len(conv.Messages); n > 0 && conv.Messages[n-1].Role == domain.RoleUser {
		lastUser = conv.Messages[n-1].Text()
	}

	resolutions := resolveConfirmations(conv, directive, lastUser)
	if len(resolutions) == 0 {
		return nil
	}

	var calls []llm.ToolCall
	var results []llm.ToolResult
	var declined []string
	for _, res := range resolutions {
		r.log.Info().
			Str("tool", res.proposal.ToolName).
			Str("resolves", res.proposal.CallID).
			Bool("approved", res.approve).
			Msg("confirmation settled")

		if !res.approve {
			declined = append(declined, fmt.Sprintf(
				"The user declined the pending %s action; it was not applied. Acknowledge the cancellation briefly.",
				res.proposal.ToolName))
			continue
		}

		callID := uuid.NewString()
		input := withConfirmed(res.proposal.Input)
		sink(Event{
			Type:     EventToolInputAvailable,
			CallID:   callID,
			ToolName: res.proposal.ToolName,
			Input:    input,
			Resolves: res.proposal.CallID,
		})
		output := deduper.collapse(callID, reg.Invoke(ctx, res.proposal.ToolName, input))
		sink(Event{
			Type:     EventToolOutputAvailable,
			CallID:   callID,
			ToolName: res.proposal.ToolName,
			Output:   output,
			Resolves: res.proposal.CallID,
		})

		*parts = append(*parts, domain.ToolPart(domain.ToolInvocation{
			ToolName: res.proposal.ToolName,
			CallID:   callID,
			State:    domain.ToolStateOutputAvailable,
			Input:    input,
			Output:   output,
			Resolves: res.proposal.CallID,
		}))
		calls = append(calls, llm.ToolCall{ID: callID, Name: res.proposal.ToolName, Input: input})
		results = append(results, llm.ToolResult{CallID: callID, Content: output})
	}

	var msgs []llm.Message
	if len(calls) > 0 {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, ToolCalls: calls},
			llm.Message{Role: llm.RoleUser, ToolResults: results},
		)
	}
	if len(declined) > 0 {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: strings.Join(declined, "\n")})
	}
	return msgs
}

// streamRound runs one model round, forwarding deltas and tool input
// streaming to the sink, and returns the assembled response.
func (r *Runner) streamRound(ctx context.Context, req llm.CompletionRequest, sink Sink) (*llm.CompletionResponse, error) {
	ch, err := r.client.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("model stream: %w", err)
	}

	var resp *llm.CompletionResponse
	var accumulated string
	for evt := range ch {
		switch evt.Type {
		case llm.EventDelta:
			accumulated += evt.Content
			sink(Event{Type: EventTextDelta, Delta: evt.Content})
		case llm.EventToolCallStart:
			sink(Event{Type: EventToolInputStreaming, CallID: evt.CallID, ToolName: evt.ToolName})
		case llm.EventToolInputDelta:
			sink(Event{Type: EventToolInputStreaming, CallID: evt.CallID, ToolName: evt.ToolName, Delta: evt.Content})
		case llm.EventDone:
			resp = evt.Response
		case llm.EventError:
			return nil, fmt.Errorf("model stream: %s", evt.Error)
		}
	}
	if resp == nil {
		return nil, fmt.Errorf("model stream ended without a response")
	}
	if resp.Content == "" {
		resp.Content = accumulated
	}
	return resp, nil
}

// executeRound runs a round's tool calls concurrently and joins at the
// round boundary: nothing from the next round starts until every call here
// has produced an output frame. Outputs are emitted in call order.
func (r *Runner) executeRound(ctx context.Context, reg *tools.Registry, calls []llm.ToolCall, deduper *outputDeduper, sink Sink, parts *[]domain.Part) []llm.ToolResult {
	for _, tc := range calls {
		sink(Event{Type: EventToolInputAvailable, CallID: tc.ID, ToolName: tc.Name, Input: tc.Input})
	}

	outputs := make([]json.RawMessage, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, tc := range calls {
		g.Go(func() error {
			outputs[i] = reg.Invoke(gctx, tc.Name, tc.Input)
			return nil
		})
	}
	_ = g.Wait() // invocations fold failures into error outputs

	results := make([]llm.ToolResult, len(calls))
	for i, tc := range calls {
		out := deduper.collapse(tc.ID, outputs[i])
		sink(Event{Type: EventToolOutputAvailable, CallID: tc.ID, ToolName: tc.Name, Output: out})
		*parts = append(*parts, domain.ToolPart(domain.ToolInvocation{
			ToolName: tc.Name,
			CallID:   tc.ID,
			State:    domain.ToolStateOutputAvailable,
			Input:    tc.Input,
			Output:   out,
		}))
		results[i] = llm.ToolResult{CallID: tc.ID, Content: out}
	}
	return results
}

// appendMerged appends m to out, folding it into the previous message when
// the roles match so the sequence sent to the model stays alternating.
func appendMerged(out []llm.Message, m llm.Message) []llm.Message {
	if n := len(out); n > 0 && out[n-1].Role == m.Role {
		prev := &out[n-1]
		if m.Content != "" {
			if prev.Content != "" {
				prev.Content += "\n" + m.Content
			} else {
				prev.Content = m.Content
			}
		}
		prev.ToolCalls = append(prev.ToolCalls, m.ToolCalls...)
		prev.ToolResults = append(prev.ToolResults, m.ToolResults...)
		return out
	}
	return append(out, m)
}

// convertHistory maps stored conversation messages to model messages.
// Assistant tool invocations become tool calls followed by their results;
// consecutive same-role messages are merged so the sequence alternates.
func convertHistory(msgs []domain.Message) []llm.Message {
	var out []llm.Message
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			out = appendMerged(out, llm.Message{Role: llm.RoleUser, Content: m.Text()})
		case domain.RoleAssistant:
			var calls []llm.ToolCall
			var results []llm.ToolResult
			for _, inv := range m.ToolInvocations() {
				if inv.State != domain.ToolStateOutputAvailable {
					continue
				}
				calls = append(calls, llm.ToolCall{ID: inv.CallID, Name: inv.ToolName, Input: inv.Input})
				results = append(results, llm.ToolResult{CallID: inv.CallID, Content: inv.Output})
			}
			out = appendMerged(out, llm.Message{Role: llm.RoleAssistant, Content: m.Text(), ToolCalls: calls})
			if len(results) > 0 {
				out = appendMerged(out, llm.Message{Role: llm.RoleUser, ToolResults: results})
			}
		}
	}
	return out
}
