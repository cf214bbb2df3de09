// Package ollama implements agent.Provider over a local Ollama server's
// /api/chat, /api/tags, and /api/show endpoints. Unlike the hosted
// providers, Ollama requires no authentication and streams newline
// delimited JSON rather than SSE.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/zeim839/agentkit/pkg/agent"
	"github.com/zeim839/agentkit/pkg/agent/sse"
)

// Provider implements agent.Provider for a local Ollama server.
type Provider struct {
	baseURL string
	client  *http.Client
}

// New builds an Ollama Provider. baseURL is typically
// "http://localhost:11434".
func New(baseURL string, client *http.Client) *Provider {
	return &Provider{baseURL: baseURL, client: client}
}

// Name implements agent.Provider.
func (p *Provider) Name() string { return "ollama" }

// --- wire types -------------------------------------------------------

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
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
	Model     string      `json:"model"`
	Message   wireMessage `json:"message"`
	Done      bool        `json:"done"`
	Error     string      `json:"error,omitempty"`
	EvalCount int         `json:"eval_count"`
	PromptEvalCount int   `json:"prompt_eval_count"`
}

// --- request translation ----------------------------------------------

func toWireRequest(req agent.Request, stream bool) (wireRequest, error) {
	wr := wireRequest{Model: req.Model, Stream: stream}
	if req.System != nil {
		wr.Messages = append(wr.Messages, wireMessage{Role: "system", Content: *req.System})
	}
	msgs := req.Messages
	for i := 0; i < len(msgs); {
		if msgs[i].Content.Kind == agent.ContentToolCall {
			j := i
			var calls []wireToolCall
			for j < len(msgs) && msgs[j].Content.Kind == agent.ContentToolCall {
				wc, err := toolCallToWire(*msgs[j].Content.ToolCall)
				if err != nil {
					return wireRequest{}, err
				}
				calls = append(calls, wc)
				j++
			}
			wr.Messages = append(wr.Messages, wireMessage{Role: string(msgs[i].Role), ToolCalls: calls})
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
		wr.Tools = append(wr.Tools, wireTool{
			Type:     "function",
			Function: wireFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return wr, nil
}

func toolCallToWire(tc agent.ToolCall) (wireToolCall, error) {
	var args map[string]any
	if len(tc.Arguments) > 0 {
		if err := json.Unmarshal(tc.Arguments, &args); err != nil {
			return wireToolCall{}, &agent.JSONError{Message: err.Error()}
		}
	}
	return wireToolCall{Function: wireFunctionCall{Name: tc.Name, Arguments: args}}, nil
}

// messageToWire handles every message kind except ContentToolCall, which
// toWireRequest coalesces across consecutive messages into one message
// with a tool_calls array before this is reached.
func messageToWire(m agent.Message) (wireMessage, error) {
	switch m.Content.Kind {
	case agent.ContentToolResponse:
		return wireMessage{Role: "tool", Content: m.Content.ToolResponse.Content}, nil
	default:
		return wireMessage{Role: string(m.Role), Content: m.Content.Text}, nil
	}
}

// fromWireMessage translates one Ollama response message into zero or more
// Messages: one per tool call plus, if present, one text message. Ollama
// may report several tool calls in a single message; each becomes its own
// agent.Message, consistent with how the Agent aggregates messages by
// content-kind rather than by wire envelope.
func fromWireMessage(m wireMessage) []agent.Message {
	var out []agent.Message
	if m.Content != "" {
		out = append(out, agent.Message{Role: agent.RoleAssistant, Content: agent.TextContent(m.Content)})
	}
	for i, tc := range m.ToolCalls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil {
			args = json.RawMessage("null")
		}
		id := fmt.Sprintf("%s_%d", tc.Function.Name, i)
		out = append(out, agent.Message{Role: agent.RoleAssistant, Content: agent.ToolCallContent(id, tc.Function.Name, args)})
	}
	return out
}

func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", p.baseURL, path)
}

// ensureToolSupport checks, via /api/show, that model advertises the
// "tools" capability before a tool-bearing request is sent to it — Ollama
// silently ignores tools on models that don't support them rather than
// erroring, so this surfaces the mismatch to the caller instead.
func (p *Provider) ensureToolSupport(ctx context.Context, model string) error {
	show, err := p.show(ctx, model)
	if err != nil {
		return err
	}
	if !supportsTools(show.Capabilities) {
		return &agent.ClientError{Message: fmt.Sprintf("model %q does not support tools", model)}
	}
	return nil
}

// Completion implements agent.Provider.
func (p *Provider) Completion(ctx context.Context, req agent.Request) (agent.Response, error) {
	if len(req.Tools) > 0 {
		if err := p.ensureToolSupport(ctx, req.Model); err != nil {
			return agent.Response{}, err
		}
	}

	wr, err := toWireRequest(req, false)
	if err != nil {
		return agent.Response{}, err
	}
	body, err := json.Marshal(wr)
	if err != nil {
		return agent.Response{}, &agent.JSONError{Message: err.Error()}
	}

	url := p.endpoint("/api/chat")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return agent.Response{}, fmt.Errorf("ollama: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return agent.Response{}, &agent.ClientError{Message: err.Error(), URL: url}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return agent.Response{}, &agent.ClientError{Status: httpResp.StatusCode, Message: "ollama request failed", URL: url}
	}

	var resp wireResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return agent.Response{}, &agent.JSONError{Message: err.Error()}
	}
	if resp.Error != "" {
		return agent.Response{}, &agent.OllamaError{Message: resp.Error}
	}

	return agent.Response{
		Messages: fromWireMessage(resp.Message),
		Usage: agent.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

// StreamCompletion implements agent.Provider over Ollama's NDJSON framing.
func (p *Provider) StreamCompletion(ctx context.Context, req agent.Request, cb agent.StreamCallback) error {
	if len(req.Tools) > 0 {
		if err := p.ensureToolSupport(ctx, req.Model); err != nil {
			return err
		}
	}

	wr, err := toWireRequest(req, true)
	if err != nil {
		return err
	}
	body, err := json.Marshal(wr)
	if err != nil {
		return &agent.JSONError{Message: err.Error()}
	}

	url := p.endpoint("/api/chat")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return &agent.ClientError{Message: err.Error(), URL: url}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return &agent.ClientError{Status: httpResp.StatusCode, Message: "ollama request failed", URL: url}
	}

	parser := sse.New(sse.BufferedReader(httpResp.Body), sse.NewNDJSONPredicate())
	return parser.Each(func(raw []byte) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var resp wireResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return &agent.JSONError{Message: err.Error()}
		}
		if resp.Error != "" {
			cb(agent.Response{Error: &agent.OllamaError{Message: resp.Error}})
			return nil
		}

		messages := fromWireMessage(resp.Message)
		usage := agent.Usage{}
		if resp.Done {
			usage = agent.Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
		}
		if len(messages) > 0 || resp.Done {
			cb(agent.Response{Messages: messages, Usage: usage})
		}
		return nil
	})
}

// --- models --------------------------------------------------------

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type showResponse struct {
	ModelInfo    map[string]any `json:"model_info"`
	Capabilities []string       `json:"capabilities"`
}

// contextLength walks modelInfo for any key ending in "context_length"
// (Ollama names this per-architecture, e.g. "llama.context_length",
// "qwen2.context_length") and returns the first numeric value found, or 0.
func contextLength(modelInfo map[string]any) int {
	for k, v := range modelInfo {
		if !strings.HasSuffix(k, "context_length") {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int(n)
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		}
	}
	return 0
}

// supportsTools reports whether capabilities contains "tools".
func supportsTools(capabilities []string) bool {
	for _, c := range capabilities {
		if c == "tools" {
			return true
		}
	}
	return false
}

// ListModels implements agent.Provider, enriching each tag with its
// context length via /api/show. The show response's capabilities are not
// recorded on the returned Model.
func (p *Provider) ListModels(ctx context.Context) ([]agent.Model, error) {
	url := p.endpoint("/api/tags")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: building request: %w", err)
	}
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &agent.ClientError{Message: err.Error(), URL: url}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, &agent.ClientError{Status: httpResp.StatusCode, Message: "ollama request failed", URL: url}
	}

	var tags tagsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&tags); err != nil {
		return nil, &agent.JSONError{Message: err.Error()}
	}

	models := make([]agent.Model, 0, len(tags.Models))
	for _, t := range tags.Models {
		m := agent.Model{ID: t.Name, DisplayName: t.Name, Provider: p.Name()}
		if show, err := p.show(ctx, t.Name); err == nil {
			m.ContextSize = contextLength(show.ModelInfo)
		}
		models = append(models, m)
	}
	return models, nil
}

func (p *Provider) show(ctx context.Context, model string) (showResponse, error) {
	body, err := json.Marshal(map[string]string{"model": model})
	if err != nil {
		return showResponse{}, &agent.JSONError{Message: err.Error()}
	}
	url := p.endpoint("/api/show")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return showResponse{}, fmt.Errorf("ollama: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return showResponse{}, &agent.ClientError{Message: err.Error(), URL: url}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return showResponse{}, &agent.ClientError{Status: httpResp.StatusCode, Message: "ollama show failed", URL: url}
	}

	var sr showResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&sr); err != nil {
		return showResponse{}, &agent.JSONError{Message: err.Error()}
	}
	return sr, nil
}

// Check implements agent.Provider via GET /api/tags.
func (p *Provider) Check(ctx context.Context) error {
	url := p.endpoint("/api/tags")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("ollama: building request: %w", err)
	}
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return &agent.ClientError{Message: err.Error(), URL: url}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return &agent.ClientError{Status: httpResp.StatusCode, Message: "ollama check failed", URL: url}
	}
	return nil
}
