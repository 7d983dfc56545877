// Package llm defines the model client interface used by the step loop.
//
// The orchestrator consumes structured tool calls: the model's tool_use
// blocks arrive as typed ToolCalls, and tool outputs go back as typed
// ToolResults, never as text parsed out of the reply.
package llm

import (
	"context"
	"encoding/json"
)

// Role constants for model messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Stream event types.
const (
	EventDelta          = "delta"
	EventToolCallStart  = "tool_call_start"
	EventToolInputDelta = "tool_input_delta"
	EventDone           = "done"
	EventError          = "error"
)

// Message is a single turn sent to the model. An assistant message may
// carry ToolCalls; a user message may carry ToolResults answering them.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult carries one tool's output back to the model.
type ToolResult struct {
	CallID  string          `json:"callId"`
	Content json.RawMessage `json:"content"`
}

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"inputSchema"` // JSON Schema string
}

// CompletionRequest is the input to a Complete or Stream call.
type CompletionRequest struct {
	Model       string           `json:"model,omitempty"`
	System      string           `json:"system,omitempty"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"maxTokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// CompletionResponse is the full result of one model round.
type CompletionResponse struct {
	Content    string     `json:"content"`
	StopReason string     `json:"stopReason,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	Usage      Usage      `json:"usage"`
	Model      string     `json:"model,omitempty"`
}

// StreamEvent is one chunk of a streaming completion.
type StreamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"` // text delta, or partial tool input JSON

	// Tool call being streamed (tool_call_start / tool_input_delta).
	CallID   string `json:"callId,omitempty"`
	ToolName string `json:"toolName,omitempty"`

	Error string `json:"error,omitempty"`

	// Final response (type == EventDone).
	Response *CompletionResponse `json:"response,omitempty"`
}

// Client is the interface the orchestrator depends on. It is a process-wide
// shared dependency constructed once and injected.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream sends a request and returns a channel of events. The channel
	// is closed after a done or error event.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)

	// Name returns the provider name.
	Name() string
}
