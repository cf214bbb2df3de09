package openai

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zeim839/agentkit/pkg/agent"
)

func TestCompletion_TextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth header")
		}
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	p := New("test-key", srv.URL, srv.Client())
	resp, err := p.Completion(t.Context(), agent.Request{
		Model:    "gpt-4o",
		Messages: []agent.Message{{Role: agent.RoleUser, Content: agent.TextContent("hi")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Content.Text != "hi there" {
		t.Fatalf("unexpected messages: %+v", resp.Messages)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected total tokens 15, got %d", resp.Usage.TotalTokens)
	}
}

func TestStreamCompletion_ToolCallContinuation(t *testing.T) {
	events := []string{
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Berlin\"}"}}]},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
	}))
	defer srv.Close()

	p := New("test-key", srv.URL, srv.Client())
	var calls []agent.ToolCall
	err := p.StreamCompletion(t.Context(), agent.Request{Model: "gpt-4o"}, func(r agent.Response) {
		for _, m := range r.Messages {
			if m.Content.Kind == agent.ContentToolCall {
				calls = append(calls, *m.Content.ToolCall)
			}
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 assembled tool call, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "get_weather" {
		t.Fatalf("unexpected tool call: %+v", calls[0])
	}
	if !strings.Contains(string(calls[0].Arguments), "Berlin") {
		t.Errorf("unexpected arguments: %s", calls[0].Arguments)
	}
}

func TestStreamCompletion_TextDeltas(t *testing.T) {
	events := []string{
		`{"choices":[{"index":0,"delta":{"content":"hel"},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		`[DONE]`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
	}))
	defer srv.Close()

	p := New("test-key", srv.URL, srv.Client())
	var text string
	var usage agent.Usage
	err := p.StreamCompletion(t.Context(), agent.Request{Model: "gpt-4o"}, func(r agent.Response) {
		for _, m := range r.Messages {
			text += m.Content.Text
		}
		if r.Usage.TotalTokens != 0 {
			usage = r.Usage
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Fatalf("expected concatenated text %q, got %q", "hello", text)
	}
	if usage.TotalTokens != 5 {
		t.Errorf("expected total tokens 5, got %d", usage.TotalTokens)
	}
}

func TestToWireRequest_CoalescesConsecutiveToolCalls(t *testing.T) {
	req := agent.Request{
		Model: "gpt-4o",
		Messages: []agent.Message{
			{Role: agent.RoleUser, Content: agent.TextContent("what's the weather and time?")},
			{Role: agent.RoleAssistant, Content: agent.ToolCallContent("call_1", "get_weather", []byte(`{"city":"Berlin"}`))},
			{Role: agent.RoleAssistant, Content: agent.ToolCallContent("call_2", "get_time", []byte(`{"tz":"UTC"}`))},
			{Role: agent.RoleTool, Content: agent.ToolResponseContent("call_1", "sunny")},
			{Role: agent.RoleTool, Content: agent.ToolResponseContent("call_2", "12:00")},
		},
	}
	wr, err := toWireRequest(req, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wr.Messages) != 4 {
		t.Fatalf("expected 4 wire messages (user, coalesced assistant, 2 tool), got %d: %+v", len(wr.Messages), wr.Messages)
	}
	assistant := wr.Messages[1]
	if assistant.Role != "assistant" || len(assistant.ToolCalls) != 2 {
		t.Fatalf("expected one assistant message with 2 coalesced tool_calls, got %+v", assistant)
	}
	if assistant.ToolCalls[0].ID != "call_1" || assistant.ToolCalls[1].ID != "call_2" {
		t.Errorf("unexpected tool call order: %+v", assistant.ToolCalls)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [{"id": "gpt-4o"}]}`)
	}))
	defer srv.Close()

	p := New("test-key", srv.URL, srv.Client())
	models, err := p.ListModels(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "gpt-4o" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestCheck_UsesListModels(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer srv.Close()

	p := New("test-key", srv.URL, srv.Client())
	if err := p.Check(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to /models, got %d", calls)
	}
}
