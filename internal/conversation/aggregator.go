// Package conversation layers SQLite-backed history and single-flight
// cancellation atop a provider-agnostic agent.Agent.
package conversation

import "github.com/zeim839/agentkit/pkg/agent"

// aggregator merges a stream of incremental agent.Message arrivals into a
// list of completed messages, the way a chat UI accumulates deltas into
// full turns.
//
// Text-variant arrivals that continue the current accumulated message are
// concatenated. Any other arrival — a different Role, a different
// ContentKind, or a second ToolCall/ToolResponse even of the same kind —
// closes out the accumulated message and starts a new one, since variant
// equality is checked structurally: two ToolCall arrivals are always
// distinct messages, never merged.
type aggregator struct {
	accumulated *agent.Message
	completed   []agent.Message
}

// add folds one incoming message into the aggregator's running state.
func (a *aggregator) add(m agent.Message) {
	if a.accumulated == nil {
		cp := m
		a.accumulated = &cp
		return
	}

	if a.accumulated.Role == m.Role &&
		a.accumulated.Content.SameVariant(m.Content) &&
		m.Content.Kind == agent.ContentText {
		a.accumulated.Content.Text += m.Content.Text
		return
	}

	a.completed = append(a.completed, *a.accumulated)
	cp := m
	a.accumulated = &cp
}

// flush closes out any trailing accumulated message and returns every
// completed message in arrival order.
func (a *aggregator) flush() []agent.Message {
	if a.accumulated != nil {
		a.completed = append(a.completed, *a.accumulated)
		a.accumulated = nil
	}
	return a.completed
}
