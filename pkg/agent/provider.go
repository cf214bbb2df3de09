package agent

import "context"

// Provider is implemented by every vendor adapter in pkg/agent/providers.
// The Agent dispatches to a Provider after stripping the "provider:" prefix
// from a Request's Model field.
type Provider interface {
	// Name returns the provider's canonical name, e.g. "anthropic".
	Name() string

	// Completion performs a single non-streaming chat completion.
	Completion(ctx context.Context, req Request) (Response, error)

	// StreamCompletion performs a streaming chat completion, invoking cb
	// for each incremental Response as it arrives. It returns once the
	// stream ends, ctx is cancelled, or a transport error occurs.
	StreamCompletion(ctx context.Context, req Request, cb StreamCallback) error

	// ListModels returns the models this provider can currently serve.
	ListModels(ctx context.Context) ([]Model, error)

	// Check performs a cheap connectivity/credential probe, returning a
	// non-nil error if the provider cannot presently serve requests.
	Check(ctx context.Context) error
}
