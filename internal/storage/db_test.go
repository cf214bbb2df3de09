package storage

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/zeim839/agentkit/pkg/agent"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentkit.db")
	db, err := Open(t.Context(), path)
	if err != nil {
		t.Fatalf("unexpected error opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_AppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentkit.db")
	db, err := Open(t.Context(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db.Close()

	// Reopening against the same file must not re-apply migration 1.
	db2, err := Open(t.Context(), path)
	if err != nil {
		t.Fatalf("unexpected error reopening: %v", err)
	}
	defer db2.Close()

	var count int
	row := db2.conn.QueryRowContext(t.Context(), `SELECT COUNT(1) FROM _migrations WHERE version = 1`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected migration 1 recorded exactly once, got %d", count)
	}
}

func TestConversation_CreateGetList(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.CreateConversation(t.Context(), "conv-1", "first chat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := db.CreateConversation(t.Context(), "conv-2", "second chat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := db.GetConversation(t.Context(), "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "first chat" {
		t.Fatalf("unexpected title: %s", got.Title)
	}

	all, err := db.ListConversations(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(all))
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetConversation(t.Context(), "missing")
	if err == nil {
		t.Fatal("expected an error for a missing conversation")
	}
	var sqlErr *agent.SQLError
	if !errors.As(err, &sqlErr) {
		t.Fatalf("expected *agent.SQLError, got %T: %v", err, err)
	}
	if sqlErr.Message != agent.ErrRowNotFound {
		t.Fatalf("unexpected message: %s", sqlErr.Message)
	}
}

func TestDeleteConversation_CascadesMessages(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.CreateConversation(t.Context(), "conv-1", "chat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := db.AppendMessage(t.Context(), "conv-1", agent.RoleUser, agent.TextContent("hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := db.DeleteConversation(t.Context(), "conv-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs, err := db.ListMessages(t.Context(), "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected cascade delete to remove messages, got %d", len(msgs))
	}
}

func TestAppendMessage_RoundTripsTextContent(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.CreateConversation(t.Context(), "conv-1", "chat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := db.AppendMessage(t.Context(), "conv-1", agent.RoleAssistant, agent.TextContent("hello there"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ID == 0 {
		t.Fatal("expected a non-zero message ID")
	}

	msgs, err := db.ListMessages(t.Context(), "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Content.Text != "hello there" {
		t.Fatalf("unexpected text: %s", msgs[0].Content.Text)
	}
	if msgs[0].Role != agent.RoleAssistant {
		t.Fatalf("unexpected role: %s", msgs[0].Role)
	}
}

func TestAppendMessage_RoundTripsToolCall(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.CreateConversation(t.Context(), "conv-1", "chat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content := agent.MessageContent{
		Kind: agent.ContentToolCall,
		ToolCall: &agent.ToolCall{
			ID:        "call-1",
			Name:      "get_weather",
			Arguments: json.RawMessage(`{"city":"nyc"}`),
		},
	}
	if _, err := db.AppendMessage(t.Context(), "conv-1", agent.RoleAssistant, content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs, err := db.ListMessages(t.Context(), "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	tc := msgs[0].Content.ToolCall
	if tc == nil {
		t.Fatal("expected a non-nil tool call")
	}
	if tc.Name != "get_weather" || string(tc.Arguments) != `{"city":"nyc"}` {
		t.Fatalf("unexpected tool call: %+v", tc)
	}
}

func TestAppendMessage_TouchesConversationUpdatedAt(t *testing.T) {
	db := openTestDB(t)

	created, err := db.CreateConversation(t.Context(), "conv-1", "chat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := db.AppendMessage(t.Context(), "conv-1", agent.RoleUser, agent.TextContent("hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := db.GetConversation(t.Context(), "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UpdatedAt.Before(created.UpdatedAt) {
		t.Fatalf("expected updated_at to advance, got %v before %v", got.UpdatedAt, created.UpdatedAt)
	}
}

func TestListMessages_OrderedByInsertion(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.CreateConversation(t.Context(), "conv-1", "chat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, text := range []string{"one", "two", "three"} {
		if _, err := db.AppendMessage(t.Context(), "conv-1", agent.RoleUser, agent.TextContent(text)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	msgs, err := db.ListMessages(t.Context(), "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if msgs[i].Content.Text != want {
			t.Fatalf("expected message %d to be %q, got %q", i, want, msgs[i].Content.Text)
		}
	}
}
