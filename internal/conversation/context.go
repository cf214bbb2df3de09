package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/zeim839/agentkit/internal/storage"
	"github.com/zeim839/agentkit/pkg/agent"
)

// Context owns one conversation's history and in-flight cancellation. It
// is safe for concurrent use; a new send_message or send_stream_message
// always cancels whatever the previous one was doing before any new
// network activity begins.
type Context struct {
	ag       *agent.Agent
	db       *storage.DB
	convID   string

	cancelMu sync.Mutex
	cancel   chan struct{}
}

func newContext(ag *agent.Agent, db *storage.DB, convID string) *Context {
	return &Context{ag: ag, db: db, convID: convID}
}

// ID returns the underlying conversation id.
func (c *Context) ID() string {
	return c.convID
}

// installCancel signals whatever cancellation channel is currently
// installed (dropping its waiting receiver) and installs a fresh one,
// atomically under cancelMu.
func (c *Context) installCancel() chan struct{} {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	if c.cancel != nil {
		close(c.cancel)
	}
	ch := make(chan struct{})
	c.cancel = ch
	return ch
}

// clearCancel removes ch from the slot if it is still the current one —
// a send that finished normally should not leave a stale cancel channel
// for StopMessages to fire against.
func (c *Context) clearCancel(ch chan struct{}) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	if c.cancel == ch {
		c.cancel = nil
	}
}

// StopMessages atomically takes the cancellation sender, if any, and
// fires it. Subsequent calls are no-ops until a new send installs a
// fresh slot.
func (c *Context) StopMessages() {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
	}
}

// history loads this conversation's messages in insertion order and
// converts them to the core agent.Message shape.
func (c *Context) history(ctx context.Context) ([]agent.Message, error) {
	stored, err := c.db.ListMessages(ctx, c.convID)
	if err != nil {
		return nil, err
	}
	msgs := make([]agent.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, agent.Message{Role: m.Role, Content: m.Content})
	}
	return msgs, nil
}

// SendMessage performs a non-streaming turn: the previous in-flight send
// (if any) is cancelled, history is prepended to req.Messages, and the
// provider call races the cancellation signal. A cancelled call returns
// an empty default Response and persists nothing.
func (c *Context) SendMessage(ctx context.Context, req agent.Request) (agent.Response, error) {
	cancelCh := c.installCancel()

	reqCtx, stopReq := context.WithCancel(ctx)
	defer stopReq()

	history, err := c.history(ctx)
	if err != nil {
		return agent.Response{}, err
	}

	full := req
	full.Messages = append(append([]agent.Message{}, history...), req.Messages...)

	type result struct {
		resp agent.Response
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		resp, err := c.ag.Completion(reqCtx, full)
		resultCh <- result{resp, err}
	}()

	select {
	case <-cancelCh:
		stopReq()
		return agent.Response{}, nil
	case res := <-resultCh:
		c.clearCancel(cancelCh)
		if res.err != nil {
			return agent.Response{}, res.err
		}
		if _, err := c.db.AppendMessages(ctx, c.convID, append(append([]agent.Message{}, req.Messages...), res.resp.Messages...)); err != nil {
			return agent.Response{}, err
		}
		return res.resp, nil
	}
}

// SendStreamMessage performs a streaming turn: the previous in-flight
// send is cancelled the same way as SendMessage, then the provider's
// stream is driven with an inner callback that both forwards events to
// cb and feeds the delta aggregator. On cancellation the underlying
// provider call is stopped via context cancellation (each adapter checks
// ctx between events), but whatever the aggregator accumulated before
// that point is still flushed and persisted — losing tokens the caller
// already saw would contradict the chat UI.
func (c *Context) SendStreamMessage(ctx context.Context, req agent.Request, cb agent.StreamCallback) (agent.Response, error) {
	cancelCh := c.installCancel()

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-cancelCh:
			stopStream()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	history, err := c.history(ctx)
	if err != nil {
		return agent.Response{}, err
	}

	full := req
	full.Messages = append(append([]agent.Message{}, history...), req.Messages...)

	agg := &aggregator{}
	var mu sync.Mutex
	streamErr := c.ag.StreamCompletion(streamCtx, full, func(r agent.Response) {
		mu.Lock()
		for _, m := range r.Messages {
			agg.add(m)
		}
		mu.Unlock()
		cb(r)
	})
	c.clearCancel(cancelCh)

	mu.Lock()
	completed := agg.flush()
	mu.Unlock()

	if err := c.persistStreamed(ctx, req.Messages, completed); err != nil {
		return agent.Response{}, err
	}

	if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
		return agent.Response{}, streamErr
	}
	return agent.Response{Messages: completed}, nil
}

// persistStreamed writes caller.messages ++ completed_messages as one
// batched insert, skipping the round trip entirely when there is
// nothing to persist (a cancel that landed before any tokens arrived).
func (c *Context) persistStreamed(ctx context.Context, callerMessages, completed []agent.Message) error {
	if len(callerMessages) == 0 && len(completed) == 0 {
		return nil
	}
	all := append(append([]agent.Message{}, callerMessages...), completed...)
	_, err := c.db.AppendMessages(ctx, c.convID, all)
	return err
}

// ListMessages returns this conversation's history in insertion order.
func (c *Context) ListMessages(ctx context.Context) ([]agent.Message, error) {
	return c.history(ctx)
}
