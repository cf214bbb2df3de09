// Package google implements agent.Provider over Google's Gemini
// generateContent/streamGenerateContent API, including its
// systemInstruction/contents/parts request shape and the top-level-array
// streaming response format.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zeim839/agentkit/pkg/agent"
	"github.com/zeim839/agentkit/pkg/agent/sse"
)

// Provider implements agent.Provider for Google Gemini.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New builds a Gemini Provider. baseURL is typically
// "https://generativelanguage.googleapis.com/v1beta".
func New(apiKey, baseURL string, client *http.Client) *Provider {
	return &Provider{apiKey: apiKey, baseURL: baseURL, client: client}
}

// Name implements agent.Provider.
func (p *Provider) Name() string { return "google" }

// --- wire types -------------------------------------------------------

type wireRequest struct {
	Contents          []wireContent         `json:"contents"`
	SystemInstruction *wireContent          `json:"systemInstruction,omitempty"`
	Tools             []wireToolDeclaration `json:"tools,omitempty"`
	GenerationConfig  *wireGenerationConfig `json:"generationConfig,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text             string              `json:"text,omitempty"`
	FunctionCall     *wireFunctionCall    `json:"functionCall,omitempty"`
	FunctionResponse *wireFunctionResult  `json:"functionResponse,omitempty"`
}

type wireFunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type wireFunctionResult struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type wireToolDeclaration struct {
	FunctionDeclarations []wireFunctionDecl `json:"functionDeclarations"`
}

type wireFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wireGenerationConfig struct {
	MaxOutputTokens int                `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *wireThinkingConfig `json:"thinkingConfig,omitempty"`
}

type wireThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
	ThinkingBudget  int  `json:"thinkingBudget"`
}

// defaultThinkingConfig mirrors the vendor CLI's default: thought
// summaries on, with a modest token budget for the thinking pass.
func defaultThinkingConfig() *wireThinkingConfig {
	return &wireThinkingConfig{IncludeThoughts: true, ThinkingBudget: 128}
}

type wireResponse struct {
	Candidates    []wireCandidate    `json:"candidates"`
	UsageMetadata *wireUsageMetadata `json:"usageMetadata"`
	Error         *wireErrorBody     `json:"error,omitempty"`
}

type wireCandidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason"`
}

type wireUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type wireErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type wireModel struct {
	Name                       string `json:"name"`
	DisplayName                string `json:"displayName"`
	InputTokenLimit            int    `json:"inputTokenLimit"`
}

type wireModelsResponse struct {
	Models []wireModel `json:"models"`
}

// --- request translation ----------------------------------------------

// geminiRole maps our Role to Gemini's ("assistant" -> "model"; Gemini has
// no "tool" role, tool results are a "user"-role functionResponse part).
func geminiRole(r agent.Role) string {
	switch r {
	case agent.RoleAssistant:
		return "model"
	case agent.RoleTool:
		return "user"
	default:
		return "user"
	}
}

func toWireRequest(req agent.Request) wireRequest {
	gr := wireRequest{}

	var systemParts []wirePart
	for _, m := range req.Messages {
		if m.Role == agent.RoleSystem {
			systemParts = append(systemParts, wirePart{Text: m.Content.Text})
			continue
		}
		gr.Contents = append(gr.Contents, wireContent{
			Role:  geminiRole(m.Role),
			Parts: []wirePart{contentToWire(m.Content, req.Messages)},
		})
	}
	if req.System != nil {
		systemParts = append([]wirePart{{Text: *req.System}}, systemParts...)
	}
	if len(systemParts) > 0 {
		gr.SystemInstruction = &wireContent{Parts: systemParts}
	}

	if len(req.Tools) > 0 {
		decls := make([]wireFunctionDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, wireFunctionDecl{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		gr.Tools = []wireToolDeclaration{{FunctionDeclarations: decls}}
	}

	gr.GenerationConfig = &wireGenerationConfig{ThinkingConfig: defaultThinkingConfig()}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		gr.GenerationConfig.MaxOutputTokens = *req.MaxTokens
	}
	return gr
}

// toolCallName walks the messages preceding a ToolResponse to find the
// ToolCall it answers, since Gemini's functionResponse part requires the
// original function name rather than the call id.
func toolCallName(id string, messages []agent.Message) string {
	for _, m := range messages {
		if m.Content.Kind == agent.ContentToolCall && m.Content.ToolCall.ID == id {
			return m.Content.ToolCall.Name
		}
	}
	return ""
}

func contentToWire(c agent.MessageContent, history []agent.Message) wirePart {
	switch c.Kind {
	case agent.ContentToolCall:
		return wirePart{FunctionCall: &wireFunctionCall{
			ID:   c.ToolCall.ID,
			Name: c.ToolCall.Name,
			Args: c.ToolCall.Arguments,
		}}
	case agent.ContentToolResponse:
		return wirePart{FunctionResponse: &wireFunctionResult{
			ID:       c.ToolResponse.ID,
			Name:     toolCallName(c.ToolResponse.ID, history),
			Response: map[string]any{"content": c.ToolResponse.Content},
		}}
	default:
		return wirePart{Text: c.Text}
	}
}

func partToContent(part wirePart) (agent.MessageContent, bool) {
	switch {
	case part.FunctionCall != nil:
		return agent.ToolCallContent(part.FunctionCall.ID, part.FunctionCall.Name, part.FunctionCall.Args), true
	case part.Text != "":
		return agent.TextContent(part.Text), true
	default:
		return agent.MessageContent{}, false
	}
}

func vendorError(resp *http.Response) error {
	var body wireResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error != nil {
		return &agent.VendorError{Provider: "Google", Type: body.Error.Status, Message: body.Error.Message}
	}
	return &agent.ClientError{Status: resp.StatusCode, Message: "google request failed", URL: resp.Request.URL.String()}
}

// Completion implements agent.Provider.
func (p *Provider) Completion(ctx context.Context, req agent.Request) (agent.Response, error) {
	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return agent.Response{}, &agent.JSONError{Message: err.Error()}
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return agent.Response{}, fmt.Errorf("google: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return agent.Response{}, &agent.ClientError{Message: err.Error(), URL: endpoint}
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
	if len(wr.Candidates) > 0 {
		for _, part := range wr.Candidates[0].Content.Parts {
			content, ok := partToContent(part)
			if !ok {
				continue
			}
			messages = append(messages, agent.Message{Role: agent.RoleAssistant, Content: content})
		}
	}

	usage := agent.Usage{}
	if wr.UsageMetadata != nil {
		usage = agent.Usage{
			PromptTokens:     wr.UsageMetadata.PromptTokenCount,
			CompletionTokens: wr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wr.UsageMetadata.TotalTokenCount,
		}
	}

	return agent.Response{Messages: messages, Usage: usage}, nil
}

// StreamCompletion implements agent.Provider. Gemini's streaming endpoint
// returns a single top-level JSON array of response objects rather than
// SSE framing; each array element is a complete wireResponse, decoded as
// soon as its closing brace is seen.
func (p *Provider) StreamCompletion(ctx context.Context, req agent.Request, cb agent.StreamCallback) error {
	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return &agent.JSONError{Message: err.Error()}
	}
	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent", p.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("google: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return &agent.ClientError{Message: err.Error(), URL: endpoint}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return vendorError(httpResp)
	}

	usage := agent.Usage{}
	parser := sse.New(sse.BufferedReader(httpResp.Body), sse.NewJSONArrayPredicate())
	err = parser.Each(func(raw []byte) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var wr wireResponse
		if err := json.Unmarshal(raw, &wr); err != nil {
			return &agent.JSONError{Message: err.Error()}
		}
		if wr.Error != nil {
			cb(agent.Response{Error: &agent.VendorError{Provider: "Google", Type: wr.Error.Status, Message: wr.Error.Message}})
			return nil
		}

		var messages []agent.Message
		if len(wr.Candidates) > 0 {
			for _, part := range wr.Candidates[0].Content.Parts {
				content, ok := partToContent(part)
				if !ok {
					continue
				}
				messages = append(messages, agent.Message{Role: agent.RoleAssistant, Content: content})
			}
		}
		if wr.UsageMetadata != nil {
			usage = agent.Usage{
				PromptTokens:     wr.UsageMetadata.PromptTokenCount,
				CompletionTokens: wr.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      wr.UsageMetadata.TotalTokenCount,
			}
		}
		if len(messages) > 0 || wr.UsageMetadata != nil {
			cb(agent.Response{Messages: messages, Usage: usage})
		}
		return nil
	})
	return err
}

// ListModels implements agent.Provider.
func (p *Provider) ListModels(ctx context.Context) ([]agent.Model, error) {
	endpoint := fmt.Sprintf("%s/models", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("google: building request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &agent.ClientError{Message: err.Error(), URL: endpoint}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, vendorError(httpResp)
	}

	var mr wireModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&mr); err != nil {
		return nil, &agent.JSONError{Message: err.Error()}
	}

	models := make([]agent.Model, 0, len(mr.Models))
	for _, m := range mr.Models {
		models = append(models, agent.Model{
			ID:          m.Name,
			DisplayName: m.DisplayName,
			Provider:    p.Name(),
			ContextSize: m.InputTokenLimit,
		})
	}
	return models, nil
}

// Check implements agent.Provider via GET /v1beta/models/{model}.
func (p *Provider) Check(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/models/gemini-1.5-flash", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("google: building request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return &agent.ClientError{Message: err.Error(), URL: endpoint}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return vendorError(httpResp)
	}
	return nil
}
