package openrouter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zeim839/agentkit/pkg/agent"
)

func TestCompletion_DelegatesToOpenAIWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`)
	}))
	defer srv.Close()

	p := New("test-key", srv.URL, srv.Client())
	resp, err := p.Completion(t.Context(), agent.Request{Model: "openrouter/auto"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Content.Text != "hi" {
		t.Fatalf("unexpected messages: %+v", resp.Messages)
	}
}

func TestListModels_RelabelsProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [{"id": "anthropic/claude-3.5-sonnet"}]}`)
	}))
	defer srv.Close()

	p := New("test-key", srv.URL, srv.Client())
	models, err := p.ListModels(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 || models[0].Provider != "openrouter" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestCheck_PostsMinimalCompletionWithModelsFallback(t *testing.T) {
	var gotReq checkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completions" {
			t.Fatalf("expected POST /completions, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("unexpected error decoding request: %v", err)
		}
		fmt.Fprint(w, `{"choices": [{"text": "pong"}]}`)
	}))
	defer srv.Close()

	p := New("test-key", srv.URL, srv.Client())
	if err := p.Check(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReq.MaxTokens != 1 {
		t.Errorf("expected max_tokens=1, got %d", gotReq.MaxTokens)
	}
	if len(gotReq.Models) == 0 {
		t.Error("expected a non-empty models fallback array")
	}
}

func TestCheck_ReturnsVendorErrorOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "invalid key"}}`)
	}))
	defer srv.Close()

	p := New("test-key", srv.URL, srv.Client())
	if err := p.Check(t.Context()); err == nil {
		t.Fatal("expected an error")
	}
}

func TestDefaultBaseURL(t *testing.T) {
	p := New("test-key", "", http.DefaultClient)
	if p.inner == nil {
		t.Fatal("expected inner provider to be set")
	}
}
