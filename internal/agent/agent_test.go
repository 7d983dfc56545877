package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise/pennywise/internal/domain"
	"github.com/pennywise/pennywise/internal/finance"
	"github.com/pennywise/pennywise/internal/llm"
	"github.com/pennywise/pennywise/internal/logging"
	"github.com/pennywise/pennywise/internal/tools"
)

var testIdent = domain.Identity{UserID: "u1", DisplayName: "Test User"}

func userMsg(text string) domain.Message {
	return domain.Message{ID: uuid.NewString(), Role: domain.RoleUser, Parts: []domain.Part{domain.TextPart(text)}, CreatedAt: time.Now()}
}

func assistantMsg(parts ...domain.Part) domain.Message {
	return domain.Message{ID: uuid.NewString(), Role: domain.RoleAssistant, Parts: parts, CreatedAt: time.Now()}
}

func collector() (*[]Event, Sink) {
	events := &[]Event{}
	return events, func(e Event) { *events = append(*events, e) }
}

func eventTypes(events []Event) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func newTestRunner(client llm.Client) *Runner {
	return NewRunner(Config{Model: "test-model"}, client, logging.Nop())
}

func testTools(backend *finance.MemoryBackend) *tools.Registry {
	return tools.Build(backend, testIdent, logging.Nop())
}

func TestRunPlainReply(t *testing.T) {
	client := &llm.MockClient{StreamFunc: llm.ScriptedStream(&llm.CompletionResponse{Content: "pong"})}
	runner := newTestRunner(client)
	reg := testTools(finance.NewMemoryBackend())

	conv := domain.NewConversation("")
	conv.Append(userMsg("ping"))

	events, sink := collector()
	msg, err := runner.Run(context.Background(), &conv, testIdent, reg, nil, sink)
	require.NoError(t, err)

	types := eventTypes(*events)
	require.NotEmpty(t, types)
	assert.Equal(t, EventStart, types[0])
	assert.Equal(t, EventFinish, types[len(types)-1])
	assert.Equal(t, []string{EventStart, EventTextDelta, EventFinish}, types)

	assert.Equal(t, domain.RoleAssistant, msg.Role)
	assert.Equal(t, "pong", msg.Text())
	assert.Empty(t, msg.ToolInvocations())
}

func TestRunToolRoundLifecycle(t *testing.T) {
	backend := finance.NewMemoryBackend()
	backend.Seed("u1", finance.Expense{Description: "coffee", AmountCents: 450, Date: time.Now()})

	client := &llm.MockClient{StreamFunc: llm.ScriptedStream(
		&llm.CompletionResponse{ToolCalls: []llm.ToolCall{{ID: "tc1", Name: "list_expenses", Input: json.RawMessage(`{}`)}}},
		&llm.CompletionResponse{Content: "You have one expense."},
	)}
	runner := newTestRunner(client)
	reg := testTools(backend)

	conv := domain.NewConversation("")
	conv.Append(userMsg("what did I spend?"))

	events, sink := collector()
	msg, err := runner.Run(context.Background(), &conv, testIdent, reg, nil, sink)
	require.NoError(t, err)

	// Lifecycle order: streaming announcement, then full input, then output,
	// all before the closing text and the finish frame.
	assert.Equal(t, []string{
		EventStart,
		EventToolInputStreaming, EventToolInputStreaming,
		EventToolInputAvailable, EventToolOutputAvailable,
		EventTextDelta,
		EventFinish,
	}, eventTypes(*events))

	invs := msg.ToolInvocations()
	require.Len(t, invs, 1)
	assert.Equal(t, "list_expenses", invs[0].ToolName)
	assert.Equal(t, domain.ToolStateOutputAvailable, invs[0].State)

	out, err := domain.DecodeToolOutput(invs[0].Output)
	require.NoError(t, err)
	list, ok := out.(domain.ListOutput)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, 1, list.Count)

	assert.Equal(t, "You have one expense.", msg.Text())
}

func TestRunRoundBudgetExhaustion(t *testing.T) {
	loop := llm.ScriptedStream(&llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{ID: "tc", Name: "list_expenses", Input: json.RawMessage(`{}`)}},
	})
	calls := 0
	client := &llm.MockClient{StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		calls++
		return loop(ctx, req)
	}}
	runner := newTestRunner(client)
	reg := testTools(finance.NewMemoryBackend())

	conv := domain.NewConversation("")
	conv.Append(userMsg("keep going"))

	events, sink := collector()
	_, err := runner.Run(context.Background(), &conv, testIdent, reg, nil, sink)
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxRounds, calls, "loop must stop at the round budget")
	// The turn still closes cleanly.
	types := eventTypes(*events)
	assert.Equal(t, EventFinish, types[len(types)-1])
}

func TestRunDuplicateOutputsCollapsed(t *testing.T) {
	backend := finance.NewMemoryBackend()
	backend.Seed("u1", finance.Expense{Description: "coffee", AmountCents: 450, Date: time.Now()})

	client := &llm.MockClient{StreamFunc: llm.ScriptedStream(
		&llm.CompletionResponse{ToolCalls: []llm.ToolCall{
			{ID: "tc1", Name: "get_budget_summary", Input: json.RawMessage(`{"month":"2026-01"}`)},
			{ID: "tc2", Name: "get_budget_summary", Input: json.RawMessage(`{"month":"2026-01"}`)},
		}},
		&llm.CompletionResponse{Content: "done"},
	)}
	runner := newTestRunner(client)
	reg := testTools(backend)

	conv := domain.NewConversation("")
	conv.Append(userMsg("budget twice"))

	events, sink := collector()
	msg, err := runner.Run(context.Background(), &conv, testIdent, reg, nil, sink)
	require.NoError(t, err)

	// Both calls keep their full lifecycle.
	var outputs []Event
	for _, e := range *events {
		if e.Type == EventToolOutputAvailable {
			outputs = append(outputs, e)
		}
	}
	require.Len(t, outputs, 2)

	invs := msg.ToolInvocations()
	require.Len(t, invs, 2)

	first, err := domain.DecodeToolOutput(invs[0].Output)
	require.NoError(t, err)
	_, ok := first.(domain.SuccessOutput)
	require.True(t, ok)

	second, err := domain.DecodeToolOutput(invs[1].Output)
	require.NoError(t, err)
	dup, ok := second.(domain.SuccessOutput)
	require.True(t, ok)
	assert.Contains(t, dup.Message, "duplicate of tc1")
}

func TestRunStreamErrorNoFinish(t *testing.T) {
	client := &llm.MockClient{StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		ch := make(chan llm.StreamEvent, 1)
		ch <- llm.StreamEvent{Type: llm.EventError, Error: "connection reset"}
		close(ch)
		return ch, nil
	}}
	runner := newTestRunner(client)
	reg := testTools(finance.NewMemoryBackend())

	conv := domain.NewConversation("")
	conv.Append(userMsg("hello"))

	events, sink := collector()
	_, err := runner.Run(context.Background(), &conv, testIdent, reg, nil, sink)
	require.Error(t, err)

	types := eventTypes(*events)
	assert.Equal(t, []string{EventStart, EventError}, types)
	assert.NotContains(t, types, EventFinish)
}

func TestRunCanceledContext(t *testing.T) {
	client := &llm.MockClient{StreamFunc: llm.ScriptedStream(&llm.CompletionResponse{Content: "never"})}
	runner := newTestRunner(client)
	reg := testTools(finance.NewMemoryBackend())

	conv := domain.NewConversation("")
	conv.Append(userMsg("hello"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events, sink := collector()
	_, err := runner.Run(ctx, &conv, testIdent, reg, nil, sink)
	require.Error(t, err)
	assert.NotContains(t, eventTypes(*events), EventFinish)
}

// pendingConv builds a conversation whose previous turn left an unconfirmed
// add_expense proposal, followed by the given user reply.
func pendingConv(reply string) domain.Conversation {
	pendingOut := domain.MustEncodeToolOutput(domain.PendingConfirmation{
		Action:  "add_expense",
		Summary: `Add expense "coffee" for $4.50`,
	})
	conv := domain.NewConversation("")
	conv.Append(userMsg("add a $4.50 coffee"))
	conv.Append(assistantMsg(
		domain.ToolPart(domain.ToolInvocation{
			ToolName: "add_expense",
			CallID:   "call-1",
			State:    domain.ToolStateOutputAvailable,
			Input:    json.RawMessage(`{"description":"coffee","amountCents":450}`),
			Output:   pendingOut,
		}),
		domain.TextPart("I'd like to add a $4.50 coffee expense. Confirm?"),
	))
	conv.Append(userMsg(reply))
	return conv
}

func expenseCount(t *testing.T, backend *finance.MemoryBackend) int {
	t.Helper()
	_, total, err := backend.ListExpenses(context.Background(), "u1", finance.ExpenseFilter{}, 0, 0)
	require.NoError(t, err)
	return total
}

func TestConfirmationCommitOnAffirmative(t *testing.T) {
	backend := finance.NewMemoryBackend()
	client := &llm.MockClient{StreamFunc: llm.ScriptedStream(&llm.CompletionResponse{Content: "Added it."})}
	runner := newTestRunner(client)
	reg := testTools(backend)

	conv := pendingConv("yes please")
	events, sink := collector()
	msg, err := runner.Run(context.Background(), &conv, testIdent, reg, nil, sink)
	require.NoError(t, err)

	assert.Equal(t, 1, expenseCount(t, backend))

	invs := msg.ToolInvocations()
	require.Len(t, invs, 1)
	assert.Equal(t, "call-1", invs[0].Resolves)
	assert.Contains(t, string(invs[0].Input), `"confirmed":true`)

	out, err := domain.DecodeToolOutput(invs[0].Output)
	require.NoError(t, err)
	success, ok := out.(domain.SuccessOutput)
	require.True(t, ok, "got %T", out)
	assert.Contains(t, success.Message, "coffee")

	// The commit's frames precede any model output.
	types := eventTypes(*events)
	assert.Equal(t, []string{EventStart, EventToolInputAvailable, EventToolOutputAvailable, EventTextDelta, EventFinish}, types)
}

func TestConfirmationDeclineExecutesNothing(t *testing.T) {
	backend := finance.NewMemoryBackend()
	var seen []llm.Message
	script := llm.ScriptedStream(&llm.CompletionResponse{Content: "Okay, I won't add it."})
	client := &llm.MockClient{StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		seen = req.Messages
		return script(ctx, req)
	}}
	runner := newTestRunner(client)
	reg := testTools(backend)

	conv := pendingConv("no, don't")
	events, sink := collector()
	msg, err := runner.Run(context.Background(), &conv, testIdent, reg, nil, sink)
	require.NoError(t, err)

	assert.Zero(t, expenseCount(t, backend))

	// No invocation happens and no tool frames appear: the cancellation is
	// narrated via text only.
	assert.Empty(t, msg.ToolInvocations())
	assert.Equal(t, []string{EventStart, EventTextDelta, EventFinish}, eventTypes(*events))
	assert.Equal(t, "Okay, I won't add it.", msg.Text())

	// The model is told about the decline so it can acknowledge it.
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Contains(t, last.Content, "declined")
	assert.Empty(t, last.ToolResults)
}

func TestConfirmationUnrelatedTurnAbandons(t *testing.T) {
	backend := finance.NewMemoryBackend()
	client := &llm.MockClient{StreamFunc: llm.ScriptedStream(&llm.CompletionResponse{Content: "Here's your budget."})}
	runner := newTestRunner(client)
	reg := testTools(backend)

	conv := pendingConv("what's my budget looking like?")
	_, sink := collector()
	msg, err := runner.Run(context.Background(), &conv, testIdent, reg, nil, sink)
	require.NoError(t, err)

	assert.Zero(t, expenseCount(t, backend))
	assert.Empty(t, msg.ToolInvocations(), "an unrelated turn must not settle the proposal")
}

func TestConfirmationExplicitDirective(t *testing.T) {
	backend := finance.NewMemoryBackend()
	client := &llm.MockClient{StreamFunc: llm.ScriptedStream(&llm.CompletionResponse{Content: "Done."})}
	runner := newTestRunner(client)
	reg := testTools(backend)

	conv := pendingConv("hmm")
	directive := &ConfirmDirective{CallID: "call-1", Approve: true}
	_, sink := collector()
	msg, err := runner.Run(context.Background(), &conv, testIdent, reg, directive, sink)
	require.NoError(t, err)

	assert.Equal(t, 1, expenseCount(t, backend))
	require.Len(t, msg.ToolInvocations(), 1)
}

func TestConfirmationStaleDirectiveIgnored(t *testing.T) {
	backend := finance.NewMemoryBackend()
	client := &llm.MockClient{StreamFunc: llm.ScriptedStream(&llm.CompletionResponse{Content: "Nothing pending by that id."})}
	runner := newTestRunner(client)
	reg := testTools(backend)

	conv := pendingConv("yes")
	directive := &ConfirmDirective{CallID: "call-gone", Approve: true}
	_, sink := collector()
	msg, err := runner.Run(context.Background(), &conv, testIdent, reg, directive, sink)
	require.NoError(t, err)

	assert.Zero(t, expenseCount(t, backend))
	assert.Empty(t, msg.ToolInvocations())
}

func TestTruncateHistory(t *testing.T) {
	msgs := make([]domain.Message, 50)
	for i := range msgs {
		msgs[i] = userMsg(fmt.Sprintf("message %d", i))
	}

	out := truncateHistory(msgs, 40)
	require.Len(t, out, 40)
	assert.Equal(t, "message 0", out[0].Text())
	assert.Equal(t, "message 11", out[1].Text())
	assert.Equal(t, "message 49", out[39].Text())

	// Under the ceiling the history passes through untouched.
	short := truncateHistory(msgs[:10], 40)
	assert.Len(t, short, 10)

	// The source is never modified.
	assert.Equal(t, "message 1", msgs[1].Text())
}

func TestConvertHistoryAlternation(t *testing.T) {
	out := domain.MustEncodeToolOutput(domain.SuccessOutput{Message: "ok"})
	msgs := []domain.Message{
		userMsg("first"),
		assistantMsg(
			domain.TextPart("checking"),
			domain.ToolPart(domain.ToolInvocation{ToolName: "list_expenses", CallID: "c1", State: domain.ToolStateOutputAvailable, Input: json.RawMessage(`{}`), Output: out}),
		),
		userMsg("second"),
	}

	converted := convertHistory(msgs)
	require.Len(t, converted, 4)
	assert.Equal(t, llm.RoleUser, converted[0].Role)
	assert.Equal(t, llm.RoleAssistant, converted[1].Role)
	require.Len(t, converted[1].ToolCalls, 1)
	assert.Equal(t, llm.RoleUser, converted[2].Role)
	require.Len(t, converted[2].ToolResults, 1)
	// The tool results merge with the following user text turn.
	assert.Equal(t, llm.RoleUser, converted[3].Role)
	assert.Equal(t, "second", converted[3].Content)
}

func TestOutputDeduper(t *testing.T) {
	d := newOutputDeduper()
	payload := json.RawMessage(`{"status":"success","message":"hi"}`)

	first := d.collapse("a", payload)
	assert.Equal(t, payload, first)

	second := d.collapse("b", payload)
	out, err := domain.DecodeToolOutput(second)
	require.NoError(t, err)
	assert.Contains(t, out.(domain.SuccessOutput).Message, "duplicate of a")

	other := d.collapse("c", json.RawMessage(`{"status":"success","message":"different"}`))
	assert.Contains(t, string(other), "different")
}

func TestResolveConfirmationsMatching(t *testing.T) {
	conv := pendingConv("sure, go ahead")
	res := resolveConfirmations(&conv, nil, "sure, go ahead")
	require.Len(t, res, 1)
	assert.True(t, res[0].approve)
	assert.Equal(t, "call-1", res[0].proposal.CallID)

	conv = pendingConv("nope")
	res = resolveConfirmations(&conv, nil, "nope")
	require.Len(t, res, 1)
	assert.False(t, res[0].approve)

	conv = pendingConv("show my expenses")
	assert.Empty(t, resolveConfirmations(&conv, nil, "show my expenses"))

	// No pending proposal means nothing resolves, whatever the reply.
	fresh := domain.NewConversation("")
	fresh.Append(userMsg("yes"))
	assert.Empty(t, resolveConfirmations(&fresh, nil, "yes"))
}

func TestWithConfirmed(t *testing.T) {
	out := withConfirmed(json.RawMessage(`{"description":"coffee","amountCents":450}`))
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, true, m["confirmed"])
	assert.Equal(t, "coffee", m["description"])

	out = withConfirmed(nil)
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, true, m["confirmed"])
}
