package agent

import "fmt"

// ClientError is a transport-level failure: timeout, connect refusal,
// non-2xx status, or a response body that could not be decoded.
type ClientError struct {
	Status  int    // HTTP status code, 0 if the request never got a response
	Message string
	URL     string
}

func (e *ClientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("agent: client error (status %d) at %s: %s", e.Status, e.URL, e.Message)
	}
	return fmt.Sprintf("agent: client error at %s: %s", e.URL, e.Message)
}

// VendorError is a structured error body returned by a provider's API.
// Provider is the canonical provider name ("Anthropic", "Google", "OpenAI",
// "OpenRouter"); Ollama reports bare strings and uses OllamaError instead.
type VendorError struct {
	Provider string
	Type     string
	Message  string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("agent: %s error: %s: %s", e.Provider, e.Type, e.Message)
}

// OllamaError wraps Ollama's bare error strings.
type OllamaError struct {
	Message string
}

func (e *OllamaError) Error() string {
	return fmt.Sprintf("agent: ollama error: %s", e.Message)
}

// JSONError wraps an encode/decode failure outside a specific vendor
// error-body context.
type JSONError struct {
	Message string
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("agent: json error: %s", e.Message)
}

// InvalidModelIDError means a Request's Model field lacked the "provider:model_id"
// colon separator.
type InvalidModelIDError struct {
	Model string
}

func (e *InvalidModelIDError) Error() string {
	return fmt.Sprintf("agent: invalid model id %q: expected \"provider:model_id\"", e.Model)
}

// ProviderNotConfiguredError means the Agent received a Request addressed
// to a provider with no registered adapter.
type ProviderNotConfiguredError struct {
	Provider string
}

func (e *ProviderNotConfiguredError) Error() string {
	return fmt.Sprintf("agent: provider %q not configured", e.Provider)
}

// SQLError wraps a database failure. RowNotFound-style lookups are
// surfaced through this type with Message == "row not found".
type SQLError struct {
	Message string
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("agent: sql error: %s", e.Message)
}

// ErrRowNotFound is the canonical message used by SQLError for
// not-found lookups (conversations, messages) so callers can match on it.
const ErrRowNotFound = "row not found"
