// Package openai implements agent.Provider over OpenAI's Chat Completions
// API (/v1/chat/completions), including its tool_calls array shape and
// streaming delta semantics where a tool call's id/name arrive once and
// subsequent deltas for the same index carry only an arguments fragment.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zeim839/agentkit/pkg/agent"
	"github.com/zeim839/agentkit/pkg/agent/sse"
)

// Provider implements agent.Provider for OpenAI.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New builds an OpenAI Provider. baseURL is typically
// "https://api.openai.com/v1".
func New(apiKey, baseURL string, client *http.Client) *Provider {
	return &Provider{apiKey: apiKey, baseURL: baseURL, client: client}
}

// Name implements agent.Provider.
func (p *Provider) Name() string { return "openai" }

// --- wire types -------------------------------------------------------

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
	MaxTokens *int         `json:"max_tokens,omitempty"`
	Stream   bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage,omitempty"`
	Error   *wireError   `json:"error,omitempty"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	Delta        wireMessage `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// --- request translation ----------------------------------------------

func toWireRequest(req agent.Request, stream bool) (wireRequest, error) {
	wr := wireRequest{Model: req.Model, Stream: stream, MaxTokens: req.MaxTokens}
	if req.System != nil {
		sys := *req.System
		wr.Messages = append(wr.Messages, wireMessage{Role: "system", Content: &sys})
	}
	msgs := req.Messages
	for i := 0; i < len(msgs); {
		if msgs[i].Content.Kind == agent.ContentToolCall {
			j := i
			var calls []wireToolCall
			for j < len(msgs) && msgs[j].Content.Kind == agent.ContentToolCall {
				calls = append(calls, toolCallToWire(*msgs[j].Content.ToolCall))
				j++
			}
			wr.Messages = append(wr.Messages, wireMessage{Role: "assistant", ToolCalls: calls})
			i = j
			continue
		}
		wm, err := messageToWire(msgs[i])
		if err != nil {
			return wireRequest{}, err
		}
		wr.Messages = append(wr.Messages, wm)
		i++
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{Type: "function", Function: wireFunction{
			Name: t.Name, Description: t.Description, Parameters: t.Parameters,
		}})
	}
	return wr, nil
}

func toolCallToWire(tc agent.ToolCall) wireToolCall {
	return wireToolCall{
		ID:   tc.ID,
		Type: "function",
		Function: wireFunctionCall{
			Name:      tc.Name,
			Arguments: string(tc.Arguments),
		},
	}
}

// messageToWire handles every message kind except ContentToolCall, which
// toWireRequest coalesces across consecutive messages into one assistant
// message before this is reached.
func messageToWire(m agent.Message) (wireMessage, error) {
	switch m.Content.Kind {
	case agent.ContentToolResponse:
		content := m.Content.ToolResponse.Content
		return wireMessage{Role: "tool", Content: &content, ToolCallID: m.Content.ToolResponse.ID}, nil
	default:
		text := m.Content.Text
		return wireMessage{Role: string(m.Role), Content: &text}, nil
	}
}

func fromWireMessage(m wireMessage) []agent.Message {
	var out []agent.Message
	if m.Content != nil && *m.Content != "" {
		out = append(out, agent.Message{Role: agent.RoleAssistant, Content: agent.TextContent(*m.Content)})
	}
	for _, tc := range m.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 || !json.Valid(args) {
			args = json.RawMessage("null")
		}
		out = append(out, agent.Message{Role: agent.RoleAssistant, Content: agent.ToolCallContent(tc.ID, tc.Function.Name, args)})
	}
	return out
}

func (p *Provider) endpoint() string {
	return fmt.Sprintf("%s/chat/completions", p.baseURL)
}

func (p *Provider) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	return httpReq, nil
}

func vendorError(resp *http.Response) error {
	var body wireResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error != nil {
		return &agent.VendorError{Provider: "OpenAI", Type: body.Error.Type, Message: body.Error.Message}
	}
	return &agent.ClientError{Status: resp.StatusCode, Message: "openai request failed", URL: resp.Request.URL.String()}
}

// Completion implements agent.Provider.
func (p *Provider) Completion(ctx context.Context, req agent.Request) (agent.Response, error) {
	wr, err := toWireRequest(req, false)
	if err != nil {
		return agent.Response{}, err
	}
	body, err := json.Marshal(wr)
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

	var resp wireResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return agent.Response{}, &agent.JSONError{Message: err.Error()}
	}

	var messages []agent.Message
	if len(resp.Choices) > 0 {
		messages = fromWireMessage(resp.Choices[0].Message)
	}
	usage := agent.Usage{}
	if resp.Usage != nil {
		usage = agent.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return agent.Response{Messages: messages, Usage: usage}, nil
}

// accumulatingToolCall tracks one tool call being assembled across
// streaming deltas, keyed by its array index.
type accumulatingToolCall struct {
	id   string
	name string
	args []byte
}

// StreamCompletion implements agent.Provider. OpenAI's streaming deltas
// send the tool call id and function name only on the first delta for a
// given index; subsequent deltas for that index carry an empty id/name and
// only append to the arguments string. Text deltas are emitted immediately;
// assembled tool calls are emitted once finish_reason arrives.
func (p *Provider) StreamCompletion(ctx context.Context, req agent.Request, cb agent.StreamCallback) error {
	wr, err := toWireRequest(req, true)
	if err != nil {
		return err
	}
	body, err := json.Marshal(wr)
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

	calls := make(map[int]*accumulatingToolCall)
	usage := agent.Usage{}

	parser := sse.New(sse.BufferedReader(httpResp.Body), sse.NewSSEPredicate())
	err = parser.Each(func(raw []byte) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var resp wireResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return &agent.JSONError{Message: err.Error()}
		}
		if resp.Error != nil {
			cb(agent.Response{Error: &agent.VendorError{Provider: "OpenAI", Type: resp.Error.Type, Message: resp.Error.Message}})
			return nil
		}
		if resp.Usage != nil {
			usage = agent.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			return nil
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != nil && *delta.Content != "" {
			cb(agent.Response{Messages: []agent.Message{{
				Role:    agent.RoleAssistant,
				Content: agent.TextContent(*delta.Content),
			}}})
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, ok := calls[idx]
			if !ok {
				acc = &accumulatingToolCall{}
				calls[idx] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.args = append(acc.args, []byte(tc.Function.Arguments)...)
		}

		if choice.FinishReason != nil {
			for _, acc := range calls {
				args := json.RawMessage(acc.args)
				if len(args) == 0 || !json.Valid(args) {
					args = json.RawMessage("null")
				}
				cb(agent.Response{Messages: []agent.Message{{
					Role:    agent.RoleAssistant,
					Content: agent.ToolCallContent(acc.id, acc.name, args),
				}}})
			}
			calls = make(map[int]*accumulatingToolCall)
			if usage.TotalTokens != 0 {
				cb(agent.Response{Usage: usage})
			}
		}
		return nil
	})
	return err
}

// ListModels implements agent.Provider.
func (p *Provider) ListModels(ctx context.Context) ([]agent.Model, error) {
	url := fmt.Sprintf("%s/models", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("openai: building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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
		models = append(models, agent.Model{ID: m.ID, DisplayName: m.ID, Provider: p.Name()})
	}
	return models, nil
}

// Check implements agent.Provider via the list_models call itself.
func (p *Provider) Check(ctx context.Context) error {
	_, err := p.ListModels(ctx)
	return err
}
