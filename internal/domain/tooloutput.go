package domain

import (
	"encoding/json"
	"fmt"
)

// ToolOutput statuses on the wire.
const (
	StatusSuccess             = "success"
	StatusPendingConfirmation = "pending_confirmation"
	StatusError               = "error"
)

// ToolOutput is the closed set of shapes a tool executor can return.
// Outputs are decoded once at the orchestration boundary; downstream
// consumers switch on the concrete type instead of probing optional fields.
type ToolOutput interface {
	Status() string
	toolOutput()
}

// SuccessOutput reports a completed operation. Mutations narrate via text
// only; Data carries structured results for read tools.
type SuccessOutput struct {
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (SuccessOutput) Status() string { return StatusSuccess }
func (SuccessOutput) toolOutput()    {}

// ListOutput is a success carrying a list page. NextCursor is an opaque
// continuation token; Args echoes the literal call arguments so a later
// "load more" reuses them unchanged except for the cursor.
type ListOutput struct {
	Items      json.RawMessage `json:"items"`
	Count      int             `json:"count"`
	NextCursor string          `json:"nextCursor,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
}

func (ListOutput) Status() string { return StatusSuccess }
func (ListOutput) toolOutput()    {}

// PendingConfirmation is a proposal for a not-yet-applied mutation. It
// carries enough detail for the user to approve without re-specifying the
// request, plus any similarity warnings.
type PendingConfirmation struct {
	Action   string          `json:"action"`
	Summary  string          `json:"summary"`
	Details  json.RawMessage `json:"details,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

func (PendingConfirmation) Status() string { return StatusPendingConfirmation }
func (PendingConfirmation) toolOutput()    {}

// ErrorOutput reports a failed operation. It is recovered locally: the
// round continues and the model may narrate or retry.
type ErrorOutput struct {
	Message string `json:"message"`
}

func (ErrorOutput) Status() string { return StatusError }
func (ErrorOutput) toolOutput()    {}

// outputEnvelope is the wire form: payload fields flattened next to status.
type outputEnvelope struct {
	Status string `json:"status"`

	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`

	Items      json.RawMessage `json:"items,omitempty"`
	Count      int             `json:"count,omitempty"`
	NextCursor string          `json:"nextCursor,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`

	Action   string          `json:"action,omitempty"`
	Summary  string          `json:"summary,omitempty"`
	Details  json.RawMessage `json:"details,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// EncodeToolOutput serializes a ToolOutput to its wire envelope.
func EncodeToolOutput(out ToolOutput) (json.RawMessage, error) {
	env := outputEnvelope{Status: out.Status()}
	switch v := out.(type) {
	case SuccessOutput:
		env.Message = v.Message
		env.Data = v.Data
	case ListOutput:
		env.Items = v.Items
		env.Count = v.Count
		env.NextCursor = v.NextCursor
		env.Args = v.Args
	case PendingConfirmation:
		env.Action = v.Action
		env.Summary = v.Summary
		env.Details = v.Details
		env.Warnings = v.Warnings
	case ErrorOutput:
		env.Message = v.Message
	default:
		return nil, fmt.Errorf("unknown tool output type %T", out)
	}
	return json.Marshal(env)
}

// DecodeToolOutput parses a wire envelope back into its concrete variant.
func DecodeToolOutput(raw json.RawMessage) (ToolOutput, error) {
	var env outputEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parsing tool output: %w", err)
	}
	switch env.Status {
	case StatusSuccess:
		if env.Items != nil {
			return ListOutput{
				Items:      env.Items,
				Count:      env.Count,
				NextCursor: env.NextCursor,
				Args:       env.Args,
			}, nil
		}
		return SuccessOutput{Message: env.Message, Data: env.Data}, nil
	case StatusPendingConfirmation:
		return PendingConfirmation{
			Action:   env.Action,
			Summary:  env.Summary,
			Details:  env.Details,
			Warnings: env.Warnings,
		}, nil
	case StatusError:
		return ErrorOutput{Message: env.Message}, nil
	default:
		return nil, fmt.Errorf("unknown tool output status %q", env.Status)
	}
}

// MustEncodeToolOutput is EncodeToolOutput for outputs built from known
// variants, where marshaling cannot fail.
func MustEncodeToolOutput(out ToolOutput) json.RawMessage {
	raw, err := EncodeToolOutput(out)
	if err != nil {
		panic(err)
	}
	return raw
}
