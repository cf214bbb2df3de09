// Package openrouter implements agent.Provider over OpenRouter's
// OpenAI-compatible /v1/chat/completions endpoint. OpenRouter's wire
// format is a superset of OpenAI's, so this adapter composes
// pkg/agent/providers/openai rather than re-implementing request/response
// translation and stream assembly.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zeim839/agentkit/pkg/agent"
	"github.com/zeim839/agentkit/pkg/agent/providers/openai"
)

// defaultBaseURL is OpenRouter's API root.
const defaultBaseURL = "https://openrouter.ai/api/v1"

// checkModels is the fallback model list sent with the probe completion in
// Check, in case the caller's preferred model is unavailable.
var checkModels = []string{"openrouter/auto", "meta-llama/llama-3-8b-instruct"}

// Provider implements agent.Provider for OpenRouter.
type Provider struct {
	inner   *openai.Provider
	apiKey  string
	baseURL string
	client  *http.Client
}

// New builds an OpenRouter Provider. If baseURL is empty, defaultBaseURL
// is used.
func New(apiKey, baseURL string, client *http.Client) *Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		inner:   openai.New(apiKey, baseURL, client),
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
	}
}

// Name implements agent.Provider.
func (p *Provider) Name() string { return "openrouter" }

// Completion implements agent.Provider by delegating to the OpenAI wire
// format; the response is returned unchanged.
func (p *Provider) Completion(ctx context.Context, req agent.Request) (agent.Response, error) {
	return p.inner.Completion(ctx, req)
}

// StreamCompletion implements agent.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req agent.Request, cb agent.StreamCallback) error {
	return p.inner.StreamCompletion(ctx, req, cb)
}

// ListModels implements agent.Provider, relabeling each model's Provider
// field since the embedded openai.Provider would otherwise report
// "openai".
func (p *Provider) ListModels(ctx context.Context) ([]agent.Model, error) {
	models, err := p.inner.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	for i := range models {
		models[i].Provider = p.Name()
	}
	return models, nil
}

type checkRequest struct {
	Model     string   `json:"model"`
	Models    []string `json:"models,omitempty"`
	Prompt    string   `json:"prompt"`
	MaxTokens int      `json:"max_tokens"`
}

type checkResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Check implements agent.Provider via a minimal legacy-completions probe:
// a single POST /completions with max_tokens=1 and a fallback models array,
// so OpenRouter can route around an unavailable preferred model.
func (p *Provider) Check(ctx context.Context) error {
	body, err := json.Marshal(checkRequest{
		Model:     checkModels[0],
		Models:    checkModels,
		Prompt:    "ping",
		MaxTokens: 1,
	})
	if err != nil {
		return &agent.JSONError{Message: err.Error()}
	}

	url := fmt.Sprintf("%s/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openrouter: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return &agent.ClientError{Message: err.Error(), URL: url}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var cr checkResponse
		_ = json.NewDecoder(httpResp.Body).Decode(&cr)
		if cr.Error != nil {
			return &agent.VendorError{Provider: "OpenRouter", Type: "check_failed", Message: cr.Error.Message}
		}
		return &agent.ClientError{Status: httpResp.StatusCode, Message: "openrouter check failed", URL: url}
	}
	return nil
}
