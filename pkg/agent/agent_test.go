package agent

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	name      string
	models    []Model
	checkErr  error
	completed Response
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Completion(ctx context.Context, req Request) (Response, error) {
	return s.completed, nil
}

func (s *stubProvider) StreamCompletion(ctx context.Context, req Request, cb StreamCallback) error {
	cb(s.completed)
	return nil
}

func (s *stubProvider) ListModels(ctx context.Context) ([]Model, error) {
	return s.models, nil
}

func (s *stubProvider) Check(ctx context.Context) error {
	return s.checkErr
}

func TestAgent_Completion_DispatchesToProvider(t *testing.T) {
	a := New(nil)
	a.Connect(&stubProvider{name: "anthropic", completed: Response{Messages: []Message{{Role: RoleAssistant, Content: TextContent("hi")}}}})

	resp, err := a.Completion(t.Context(), Request{Model: "anthropic:claude-3-5-sonnet"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Content.Text != "hi" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAgent_Completion_DispatchesCaseInsensitiveProviderPrefix(t *testing.T) {
	a := New(nil)
	a.Connect(&stubProvider{name: "anthropic", completed: Response{Messages: []Message{{Role: RoleAssistant, Content: TextContent("hi")}}}})

	resp, err := a.Completion(t.Context(), Request{Model: "Anthropic:claude-3-5-sonnet"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Content.Text != "hi" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAgent_Completion_InvalidModelID(t *testing.T) {
	a := New(nil)
	_, err := a.Completion(t.Context(), Request{Model: "no-colon-here"})
	var target *InvalidModelIDError
	if !errors.As(err, &target) {
		t.Fatalf("expected InvalidModelIDError, got %v", err)
	}
}

func TestAgent_Completion_ProviderNotConfigured(t *testing.T) {
	a := New(nil)
	_, err := a.Completion(t.Context(), Request{Model: "unknown:some-model"})
	var target *ProviderNotConfiguredError
	if !errors.As(err, &target) {
		t.Fatalf("expected ProviderNotConfiguredError, got %v", err)
	}
}

func TestAgent_ListModels_PrefixesProviderName(t *testing.T) {
	a := New(nil)
	a.Connect(&stubProvider{name: "openai", models: []Model{{ID: "gpt-4o"}}})

	models, err := a.ListModels(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "openai:gpt-4o" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestAgent_ListModels_SkipsFailingProvider(t *testing.T) {
	a := New(nil)
	a.Connect(&stubProvider{name: "good", models: []Model{{ID: "m1"}}})
	a.Connect(&failingModelsProvider{name: "bad"})

	models, err := a.ListModels(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("expected failing provider to be skipped, got %+v", models)
	}
}

type failingModelsProvider struct{ name string }

func (f *failingModelsProvider) Name() string { return f.name }
func (f *failingModelsProvider) Completion(ctx context.Context, req Request) (Response, error) {
	return Response{}, errors.New("boom")
}
func (f *failingModelsProvider) StreamCompletion(ctx context.Context, req Request, cb StreamCallback) error {
	return errors.New("boom")
}
func (f *failingModelsProvider) ListModels(ctx context.Context) ([]Model, error) {
	return nil, errors.New("boom")
}
func (f *failingModelsProvider) Check(ctx context.Context) error { return errors.New("boom") }

func TestAgent_Check_AggregatesPerProvider(t *testing.T) {
	a := New(nil)
	a.Connect(&stubProvider{name: "healthy"})
	a.Connect(&stubProvider{name: "sick", checkErr: errors.New("down")})

	results := a.Check(t.Context())
	if results["healthy"] != nil {
		t.Errorf("expected healthy provider to report nil, got %v", results["healthy"])
	}
	if results["sick"] == nil {
		t.Errorf("expected sick provider to report an error")
	}
}

func TestAgent_Disconnect(t *testing.T) {
	a := New(nil)
	a.Connect(&stubProvider{name: "anthropic"})
	a.Disconnect("anthropic")

	_, err := a.Completion(t.Context(), Request{Model: "anthropic:claude-3-5-sonnet"})
	var target *ProviderNotConfiguredError
	if !errors.As(err, &target) {
		t.Fatalf("expected ProviderNotConfiguredError after disconnect, got %v", err)
	}
}
