package agent

import "encoding/json"

// Event frame types emitted while a turn runs. The consumer receives exactly
// one start frame, zero or more text/tool frames, and exactly one finish
// frame, unless a terminal error frame closes the stream early.
const (
	EventStart               = "start"
	EventTextDelta           = "text-delta"
	EventToolInputStreaming  = "tool-input-streaming"
	EventToolInputAvailable  = "tool-input-available"
	EventToolOutputAvailable = "tool-output-available"
	EventFinish              = "finish"
	EventError               = "error"
)

// Event is one frame of the turn's output stream.
type Event struct {
	Type string `json:"type"`

	// Text fragment (text-delta) or partial tool input (tool-input-streaming).
	Delta string `json:"delta,omitempty"`

	// Tool lifecycle fields.
	CallID   string          `json:"callId,omitempty"`
	ToolName string          `json:"toolName,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`

	// Resolves correlates a committed or abandoned confirmation with the
	// callId of the proposal it answers.
	Resolves string `json:"resolves,omitempty"`

	Error string `json:"error,omitempty"`
}

// Sink receives events as soon as they are available.
type Sink func(Event)
