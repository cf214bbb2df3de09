// Package anthropic implements agent.Provider over Anthropic's Messages
// API (https://api.anthropic.com/v1/messages), including the named-event
// SSE stream format and its content-block assembly state machine.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zeim839/agentkit/pkg/agent"
	"github.com/zeim839/agentkit/pkg/agent/sse"
)

// apiVersion pins the Anthropic wire format. Anthropic versions its API via
// this header rather than the URL path.
const apiVersion = "2023-06-01"

// defaultMaxTokens is sent when a Request does not set MaxTokens; Anthropic
// rejects requests that omit max_tokens entirely.
const defaultMaxTokens = 1024

// Provider implements agent.Provider for Anthropic.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New builds an Anthropic Provider. baseURL is typically
// "https://api.anthropic.com/v1"; client is built once at connect-time by
// the caller so transport timeouts are configured in one place.
func New(apiKey, baseURL string, client *http.Client) *Provider {
	return &Provider{apiKey: apiKey, baseURL: baseURL, client: client}
}

// Name implements agent.Provider.
func (p *Provider) Name() string { return "anthropic" }

// --- wire types -------------------------------------------------------

type wireRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
	Tools     []wireTool    `json:"tools,omitempty"`
	Stream    bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string       `json:"role"`
	Content []wireContent `json:"content"`
}

type wireContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type wireResponse struct {
	ID         string        `json:"id"`
	Content    []wireContent `json:"content"`
	Model      string        `json:"model"`
	StopReason string        `json:"stop_reason"`
	Usage      wireUsage     `json:"usage"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- request translation ----------------------------------------------

func toWireRequest(req agent.Request, stream bool) wireRequest {
	wr := wireRequest{Model: req.Model, Stream: stream}
	if req.System != nil {
		wr.System = *req.System
	}
	for _, m := range req.Messages {
		if m.Role == agent.RoleSystem {
			if wr.System == "" {
				wr.System = m.Content.Text
			} else {
				wr.System += "\n" + m.Content.Text
			}
			continue
		}
		wr.Messages = append(wr.Messages, wireMessage{
			Role:    string(m.Role),
			Content: []wireContent{contentToWire(m.Content)},
		})
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		wr.MaxTokens = *req.MaxTokens
	} else {
		wr.MaxTokens = defaultMaxTokens
	}
	return wr
}

func contentToWire(c agent.MessageContent) wireContent {
	switch c.Kind {
	case agent.ContentToolCall:
		return wireContent{Type: "tool_use", ID: c.ToolCall.ID, Name: c.ToolCall.Name, Input: c.ToolCall.Arguments}
	case agent.ContentToolResponse:
		return wireContent{Type: "tool_result", ToolUseID: c.ToolResponse.ID, Content: c.ToolResponse.Content}
	default:
		return wireContent{Type: "text", Text: c.Text}
	}
}

func fromWireContent(c wireContent) (agent.MessageContent, bool) {
	switch c.Type {
	case "text":
		return agent.TextContent(c.Text), true
	case "tool_use":
		return agent.ToolCallContent(c.ID, c.Name, c.Input), true
	default:
		return agent.MessageContent{}, false
	}
}

func (p *Provider) endpoint() string {
	return fmt.Sprintf("%s/messages", p.baseURL)
}

func (p *Provider) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	return httpReq, nil
}

func vendorError(resp *http.Response) error {
	var body wireErrorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error.Message != "" {
		return &agent.VendorError{Provider: "Anthropic", Type: body.Error.Type, Message: body.Error.Message}
	}
	return &agent.ClientError{Status: resp.StatusCode, Message: "anthropic request failed", URL: resp.Request.URL.String()}
}

// Completion implements agent.Provider.
func (p *Provider) Completion(ctx context.Context, req agent.Request) (agent.Response, error) {
	body, err := json.Marshal(toWireRequest(req, false))
	if err != nil {
		return agent.Response{}, &agent.JSONError{Message: err.Error()}
	}
	httpReq, err := p.newHTTPRequest(ctx, body)
	if err != nil {
		return agent.Response{}, err
	}
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return agent.Response{}, &agent.ClientError{Message: err.Error(), URL: p.endpoint()}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return agent.Response{}, vendorError(httpResp)
	}

	var wr wireResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wr); err != nil {
		return agent.Response{}, &agent.JSONError{Message: err.Error()}
	}

	var messages []agent.Message
	for _, block := range wr.Content {
		content, ok := fromWireContent(block)
		if !ok {
			continue
		}
		messages = append(messages, agent.Message{Role: agent.RoleAssistant, Content: content})
	}

	return agent.Response{
		Messages: messages,
		Usage: agent.Usage{
			PromptTokens:     wr.Usage.InputTokens,
			CompletionTokens: wr.Usage.OutputTokens,
			TotalTokens:      wr.Usage.InputTokens + wr.Usage.OutputTokens,
		},
	}, nil
}

// --- streaming: block assembly -----------------------------------------

// streamEvent is the thin wrapper decoded first to read "type" before the
// full shape is known, since Anthropic sends named events with different
// payload shapes sharing one SSE channel.
type streamEvent struct {
	Type         string           `json:"type"`
	Index        int              `json:"index"`
	Message      *streamMessage   `json:"message,omitempty"`
	ContentBlock *wireContent     `json:"content_block,omitempty"`
	Delta        *streamDelta     `json:"delta,omitempty"`
	Usage        *wireUsage       `json:"usage,omitempty"`
	Error        *json.RawMessage `json:"error,omitempty"`
}

// streamMessage is the message_start event's envelope, carrying the
// input token count for the turn.
type streamMessage struct {
	Usage wireUsage `json:"usage"`
}

type streamDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// blockState accumulates one content block across its content_block_start
// / content_block_delta / content_block_stop events.
type blockState struct {
	kind      string // "text" or "tool_use"
	id        string
	name      string
	text      string
	jsonParts []byte
}

// StreamCompletion implements agent.Provider. Text deltas are emitted
// immediately as they arrive; tool_use blocks accumulate their
// input_json_delta fragments and are only emitted as a single ToolCall on
// content_block_stop. Malformed accumulated JSON yields a ToolCall with
// Arguments set to the literal JSON null, never a dropped message.
func (p *Provider) StreamCompletion(ctx context.Context, req agent.Request, cb agent.StreamCallback) error {
	body, err := json.Marshal(toWireRequest(req, true))
	if err != nil {
		return &agent.JSONError{Message: err.Error()}
	}
	httpReq, err := p.newHTTPRequest(ctx, body)
	if err != nil {
		return err
	}
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return &agent.ClientError{Message: err.Error(), URL: p.endpoint()}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return vendorError(httpResp)
	}

	blocks := make(map[int]*blockState)
	usage := agent.Usage{}

	parser := sse.New(sse.BufferedReader(httpResp.Body), sse.NewSSEPredicate())
	return parser.Each(func(raw []byte) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var evt streamEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return &agent.JSONError{Message: err.Error()}
		}

		switch evt.Type {
		case "message_start":
			if evt.Message != nil {
				usage.PromptTokens = evt.Message.Usage.InputTokens
			}
		case "content_block_start":
			if evt.ContentBlock == nil {
				return nil
			}
			blocks[evt.Index] = &blockState{
				kind: evt.ContentBlock.Type,
				id:   evt.ContentBlock.ID,
				name: evt.ContentBlock.Name,
			}
		case "content_block_delta":
			b, ok := blocks[evt.Index]
			if !ok || evt.Delta == nil {
				return nil
			}
			switch evt.Delta.Type {
			case "text_delta":
				b.text += evt.Delta.Text
				cb(agent.Response{Messages: []agent.Message{{
					Role:    agent.RoleAssistant,
					Content: agent.TextContent(evt.Delta.Text),
				}}})
			case "input_json_delta":
				b.jsonParts = append(b.jsonParts, []byte(evt.Delta.PartialJSON)...)
			}
		case "content_block_stop":
			b, ok := blocks[evt.Index]
			if !ok {
				return nil
			}
			delete(blocks, evt.Index)
			if b.kind == "tool_use" {
				args := json.RawMessage(b.jsonParts)
				if len(args) == 0 || !json.Valid(args) {
					args = json.RawMessage("null")
				}
				cb(agent.Response{Messages: []agent.Message{{
					Role:    agent.RoleAssistant,
					Content: agent.ToolCallContent(b.id, b.name, args),
				}}})
			}
		case "message_delta":
			if evt.Usage != nil {
				usage.CompletionTokens = evt.Usage.OutputTokens
			}
		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			cb(agent.Response{Usage: usage})
		case "error":
			msg := ""
			if evt.Error != nil {
				msg = string(*evt.Error)
			}
			cb(agent.Response{Error: &agent.VendorError{Provider: "Anthropic", Type: "stream_error", Message: msg}})
		}
		return nil
	})
}

// --- models --------------------------------------------------------

type modelsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
}

// ListModels implements agent.Provider.
func (p *Provider) ListModels(ctx context.Context) ([]agent.Model, error) {
	url := fmt.Sprintf("%s/models", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("anthropic: building request: %w", err)
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &agent.ClientError{Message: err.Error(), URL: url}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, vendorError(httpResp)
	}

	var mr modelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&mr); err != nil {
		return nil, &agent.JSONError{Message: err.Error()}
	}

	models := make([]agent.Model, 0, len(mr.Data))
	for _, m := range mr.Data {
		models = append(models, agent.Model{ID: m.ID, DisplayName: m.DisplayName, Provider: p.Name()})
	}
	return models, nil
}

// Check implements agent.Provider via a cheap GET /v1/models?limit=1 probe.
func (p *Provider) Check(ctx context.Context) error {
	url := fmt.Sprintf("%s/models?limit=1", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("anthropic: building request: %w", err)
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return &agent.ClientError{Message: err.Error(), URL: url}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return vendorError(httpResp)
	}
	return nil
}
