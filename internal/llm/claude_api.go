package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicMessagesURL = "https://api.anthropic.com/v1/messages"

// ClaudeClient is a direct HTTP client for the Anthropic Messages API.
type ClaudeClient struct {
	apiKey string
	model  string
	client *http.Client
}

// NewClaudeClient creates a Claude API client.
func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return &ClaudeClient{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// Name returns the provider name.
func (c *ClaudeClient) Name() string { return "claude" }

// Complete sends a non-streaming completion request.
func (c *ClaudeClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	payload, err := json.Marshal(c.buildRequestBody(req, false))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.send(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result claudeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return result.toCompletion(), nil
}

// Stream sends a streaming completion request and translates the API's SSE
// events into StreamEvents, including tool_use lifecycle events.
func (c *ClaudeClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	payload, err := json.Marshal(c.buildRequestBody(req, true))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	events := make(chan StreamEvent)
	go c.streamRequest(ctx, events, payload)
	return events, nil
}

func (c *ClaudeClient) send(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicMessagesURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *ClaudeClient) buildRequestBody(req CompletionRequest, stream bool) map[string]any {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := map[string]any{
		"model":      model,
		"messages":   messagesToClaude(req.Messages),
		"max_tokens": maxTokens,
		"stream":     stream,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": parseJSONSchema(t.InputSchema),
			}
		}
		body["tools"] = tools
	}
	return body
}

// messagesToClaude converts messages to content-block form. Tool calls
// become tool_use blocks on assistant messages; tool results become
// tool_result blocks on user messages.
func messagesToClaude(msgs []Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		var blocks []map[string]any
		for _, tr := range m.ToolResults {
			blocks = append(blocks, map[string]any{
				"type":        "tool_result",
				"tool_use_id": tr.CallID,
				"content":     string(tr.Content),
			})
		}
		if m.Content != "" {
			blocks = append(blocks, map[string]any{"type": "text", "text": m.Content})
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, map[string]any{
				"type":  "tool_use",
				"id":    tc.ID,
				"name":  tc.Name,
				"input": parseJSONSchema(string(tc.Input)),
			})
		}
		if blocks == nil {
			continue
		}
		out = append(out, map[string]any{"role": m.Role, "content": blocks})
	}
	return out
}

func (c *ClaudeClient) streamRequest(ctx context.Context, events chan<- StreamEvent, payload []byte) {
	defer close(events)

	resp, err := c.send(ctx, payload)
	if err != nil {
		events <- StreamEvent{Type: EventError, Error: err.Error()}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		events <- StreamEvent{Type: EventError, Error: fmt.Sprintf("API error (%d): %s", resp.StatusCode, string(body))}
		return
	}

	var (
		fullText   strings.Builder
		usage      Usage
		stopReason string
		// tool_use blocks under construction, keyed by content block index
		pending = make(map[int]*toolCallBuilder)
		order   []int
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		dataStr := strings.TrimPrefix(line, "data: ")
		if dataStr == "[DONE]" {
			break
		}

		var event claudeStreamEvent
		if err := json.Unmarshal([]byte(dataStr), &event); err != nil {
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				usage.InputTokens = event.Message.Usage.InputTokens
			}

		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				pending[event.Index] = &toolCallBuilder{id: event.ContentBlock.ID, name: event.ContentBlock.Name}
				order = append(order, event.Index)
				events <- StreamEvent{
					Type:     EventToolCallStart,
					CallID:   event.ContentBlock.ID,
					ToolName: event.ContentBlock.Name,
				}
			}

		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				fullText.WriteString(event.Delta.Text)
				events <- StreamEvent{Type: EventDelta, Content: event.Delta.Text}
			case "input_json_delta":
				if b := pending[event.Index]; b != nil {
					b.input.WriteString(event.Delta.PartialJSON)
					events <- StreamEvent{
						Type:     EventToolInputDelta,
						CallID:   b.id,
						ToolName: b.name,
						Content:  event.Delta.PartialJSON,
					}
				}
			}

		case "message_delta":
			if event.Delta.StopReason != "" {
				stopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				usage.OutputTokens = event.Usage.OutputTokens
			}
		}
	}

	if err := scanner.Err(); err != nil {
		events <- StreamEvent{Type: EventError, Error: fmt.Sprintf("stream read: %v", err)}
		return
	}

	var toolCalls []ToolCall
	for _, idx := range order {
		b := pending[idx]
		input := b.input.String()
		if input == "" {
			input = "{}"
		}
		toolCalls = append(toolCalls, ToolCall{ID: b.id, Name: b.name, Input: json.RawMessage(input)})
	}

	events <- StreamEvent{
		Type: EventDone,
		Response: &CompletionResponse{
			Content:    fullText.String(),
			StopReason: stopReason,
			ToolCalls:  toolCalls,
			Usage:      usage,
			Model:      c.model,
		},
	}
}

type toolCallBuilder struct {
	id    string
	name  string
	input strings.Builder
}

// parseJSONSchema converts a JSON string to a map, or nil when empty or
// malformed. The API reports schema errors itself.
func parseJSONSchema(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// Wire structures for the Messages API.

type claudeResponse struct {
	ID         string               `json:"id"`
	Role       string               `json:"role"`
	Content    []claudeContentBlock `json:"content"`
	Model      string               `json:"model"`
	StopReason string               `json:"stop_reason"`
	Usage      claudeUsage          `json:"usage"`
}

func (r *claudeResponse) toCompletion() *CompletionResponse {
	var content strings.Builder
	var toolCalls []ToolCall
	for _, block := range r.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, ToolCall{ID: block.ID, Name: block.Name, Input: block.Input})
		}
	}
	return &CompletionResponse{
		Content:    content.String(),
		StopReason: r.StopReason,
		ToolCalls:  toolCalls,
		Usage:      Usage{InputTokens: r.Usage.InputTokens, OutputTokens: r.Usage.OutputTokens},
		Model:      r.Model,
	}
}

type claudeContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeStreamEvent struct {
	Type         string              `json:"type"`
	Index        int                 `json:"index,omitempty"`
	Message      *claudeResponse     `json:"message,omitempty"`
	ContentBlock *claudeContentBlock `json:"content_block,omitempty"`
	Delta        claudeStreamDelta   `json:"delta,omitempty"`
	Usage        *claudeUsage        `json:"usage,omitempty"`
}

type claudeStreamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}
