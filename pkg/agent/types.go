// Package agent defines the provider-agnostic chat contract: the core
// Message/Request/Response types every provider adapter translates to and
// from, and the Provider and Agent abstractions that dispatch against it.
//
// Providers accept and return these types regardless of which vendor HTTP
// API backs them — callers never need to know whether a conversation is
// being served by Anthropic, Google, Ollama, OpenAI, or OpenRouter.
package agent

import "encoding/json"

// Role identifies who authored a Message. It serializes lowercase.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind discriminates which field of a MessageContent is populated.
// Go has no tagged unions, so MessageContent carries all three payload
// fields and only the one matching Kind is meaningful — callers must
// switch on Kind before reading Text/ToolCall/ToolResponse.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentToolCall
	ContentToolResponse
)

// String returns a human-readable name for the content kind, used in log
// lines and error messages.
func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentToolCall:
		return "tool_call"
	case ContentToolResponse:
		return "tool_response"
	default:
		return "unknown"
	}
}

// ToolCall is a model-issued function-call intent.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResponse is the caller-supplied result of a prior ToolCall.
type ToolResponse struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// MessageContent is a tagged variant holding exactly one of Text, ToolCall,
// or ToolResponse, selected by Kind.
type MessageContent struct {
	Kind         ContentKind   `json:"kind"`
	Text         string        `json:"text,omitempty"`
	ToolCall     *ToolCall     `json:"tool_call,omitempty"`
	ToolResponse *ToolResponse `json:"tool_response,omitempty"`
}

// TextContent builds a Text-variant MessageContent.
func TextContent(text string) MessageContent {
	return MessageContent{Kind: ContentText, Text: text}
}

// ToolCallContent builds a ToolCall-variant MessageContent.
func ToolCallContent(id, name string, arguments json.RawMessage) MessageContent {
	return MessageContent{Kind: ContentToolCall, ToolCall: &ToolCall{ID: id, Name: name, Arguments: arguments}}
}

// ToolResponseContent builds a ToolResponse-variant MessageContent.
func ToolResponseContent(id, content string) MessageContent {
	return MessageContent{Kind: ContentToolResponse, ToolResponse: &ToolResponse{ID: id, Content: content}}
}

// SameVariant reports whether m and other carry the same ContentKind. The
// delta aggregator (internal/conversation) uses this — not payload
// equality — to decide whether two streamed Messages should be merged.
func (m MessageContent) SameVariant(other MessageContent) bool {
	return m.Kind == other.Kind
}

// Message is a single turn in a conversation. Messages are value objects:
// they are copied whenever placed into a provider Request.
type Message struct {
	Role    Role           `json:"role"`
	Content MessageContent `json:"content"`
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is the provider-agnostic request shape. At the Agent boundary,
// Model is of the form "provider:model_id"; provider adapters receive a
// Request with Model already rewritten to the bare model_id.
type Request struct {
	Model     string           `json:"model"`
	Messages  []Message        `json:"messages"`
	MaxTokens *int             `json:"max_tokens,omitempty"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	System    *string          `json:"system,omitempty"`
}

// Usage holds token accounting returned by a provider. Total is always
// Prompt + Completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the provider-agnostic response shape. Multiple Messages may
// appear (e.g. a text message followed by one or more tool calls). Error is
// non-nil only for in-band vendor errors surfaced during streaming; a
// failed non-streaming call instead returns a non-nil error from the
// operation itself.
type Response struct {
	Messages []Message `json:"messages,omitempty"`
	Usage    Usage     `json:"usage"`
	Error    error     `json:"-"`
}

// Model describes a model a provider can serve.
type Model struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Provider    string `json:"provider"`
	ContextSize int    `json:"context_size"`
}

// StreamCallback is invoked zero or more times as streaming events arrive.
// A single streaming call must never invoke it from multiple goroutines
// concurrently.
type StreamCallback func(Response)
