package domain

import (
	"encoding/json"
	"time"
)

// Role constants for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part types.
const (
	PartTypeText           = "text"
	PartTypeToolInvocation = "tool-invocation"
)

// ToolState is the lifecycle state of a tool invocation.
// Transitions are one-way: input-streaming → input-available → output-available.
type ToolState string

const (
	ToolStateInputStreaming  ToolState = "input-streaming"
	ToolStateInputAvailable  ToolState = "input-available"
	ToolStateOutputAvailable ToolState = "output-available"
)

// Part is one element of a message: either a text fragment or a tool
// invocation. Type discriminates; exactly one of the payload fields is set.
type Part struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Tool *ToolInvocation `json:"toolInvocation,omitempty"`
}

// TextPart creates a text part.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// ToolPart creates a tool-invocation part.
func ToolPart(inv ToolInvocation) Part {
	return Part{Type: PartTypeToolInvocation, Tool: &inv}
}

// ToolInvocation records one tool call within a message. CallID is unique
// within the message and correlates a later confirmation reply to the
// proposal it resolves.
type ToolInvocation struct {
	ToolName string          `json:"toolName"`
	CallID   string          `json:"callId"`
	State    ToolState       `json:"state"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`

	// Resolves names the callId of an earlier pending proposal this
	// invocation commits or abandons, if any.
	Resolves string `json:"resolves,omitempty"`
}

// Message is one ordered turn of a conversation. Messages are only ever
// appended; order is canonical.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Text concatenates all text parts of the message.
func (m Message) Text() string {
	var s string
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			s += p.Text
		}
	}
	return s
}

// ToolInvocations returns the tool-invocation parts of the message.
func (m Message) ToolInvocations() []ToolInvocation {
	var invs []ToolInvocation
	for _, p := range m.Parts {
		if p.Type == PartTypeToolInvocation && p.Tool != nil {
			invs = append(invs, *p.Tool)
		}
	}
	return invs
}
