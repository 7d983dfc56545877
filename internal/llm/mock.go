package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	StreamFunc   func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

func (m *MockClient) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response"}, nil
}

func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	ch := make(chan StreamEvent, 2)
	ch <- StreamEvent{Type: EventDelta, Content: "mock "}
	ch <- StreamEvent{Type: EventDone, Response: &CompletionResponse{Content: "mock stream response"}}
	close(ch)
	return ch, nil
}

// ScriptedStream builds a StreamFunc that replays one scripted response per
// call: text deltas first, then tool calls, then the done event. Responses
// past the script's end repeat the last entry.
func ScriptedStream(responses ...*CompletionResponse) func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	call := 0
	return func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
		resp := responses[min(call, len(responses)-1)]
		call++

		ch := make(chan StreamEvent, len(resp.ToolCalls)+3)
		if resp.Content != "" {
			ch <- StreamEvent{Type: EventDelta, Content: resp.Content}
		}
		for _, tc := range resp.ToolCalls {
			ch <- StreamEvent{Type: EventToolCallStart, CallID: tc.ID, ToolName: tc.Name}
			ch <- StreamEvent{Type: EventToolInputDelta, CallID: tc.ID, ToolName: tc.Name, Content: string(tc.Input)}
		}
		ch <- StreamEvent{Type: EventDone, Response: resp}
		close(ch)
		return ch, nil
	}
}
