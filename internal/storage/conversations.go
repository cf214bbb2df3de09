package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeim839/agentkit/pkg/agent"
)

// Conversation is a persisted conversation header row.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredMessage is a persisted message row, carrying the same
// agent.MessageContent payload the runtime operates on.
type StoredMessage struct {
	ID             int64
	ConversationID string
	Role           agent.Role
	Content        agent.MessageContent
	CreatedAt      time.Time
}

// CreateConversation inserts a new conversation row.
func (db *DB) CreateConversation(ctx context.Context, id, title string) (Conversation, error) {
	now := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, title, now.Unix(), now.Unix(),
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("storage: create conversation: %w", err)
	}
	return Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// GetConversation fetches a conversation by ID.
func (db *DB) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id,
	)
	var c Conversation
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.Title, &createdAt, &updatedAt); err != nil {
		return Conversation{}, rowNotFound(err)
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return c, nil
}

// ListConversations returns every conversation, most recently updated
// first.
func (db *DB) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var createdAt, updatedAt int64
		if err := rows.Scan(&c.ID, &c.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan conversation: %w", err)
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		c.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation and, via ON DELETE CASCADE,
// every message belonging to it.
func (db *DB) DeleteConversation(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete conversation: %w", err)
	}
	return nil
}

// AppendMessage stores one message under conversationID and bumps the
// parent conversation's updated_at.
func (db *DB) AppendMessage(ctx context.Context, conversationID string, role agent.Role, content agent.MessageContent) (StoredMessage, error) {
	now := time.Now()

	var toolCallJSON, toolResponseJSON sql.NullString
	if content.ToolCall != nil {
		b, err := json.Marshal(content.ToolCall)
		if err != nil {
			return StoredMessage{}, &agent.JSONError{Message: err.Error()}
		}
		toolCallJSON = sql.NullString{String: string(b), Valid: true}
	}
	if content.ToolResponse != nil {
		b, err := json.Marshal(content.ToolResponse)
		if err != nil {
			return StoredMessage{}, &agent.JSONError{Message: err.Error()}
		}
		toolResponseJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, kind, text, tool_call, tool_response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conversationID, string(role), int(content.Kind), content.Text, toolCallJSON, toolResponseJSON, now.Unix(),
	)
	if err != nil {
		return StoredMessage{}, fmt.Errorf("storage: append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return StoredMessage{}, fmt.Errorf("storage: append message: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now.Unix(), conversationID,
	); err != nil {
		return StoredMessage{}, fmt.Errorf("storage: touch conversation: %w", err)
	}

	return StoredMessage{ID: id, ConversationID: conversationID, Role: role, Content: content, CreatedAt: now}, nil
}

// AppendMessages stores msgs under conversationID as one batched insert
// inside a single transaction, and bumps the parent conversation's
// updated_at once.
func (db *DB) AppendMessages(ctx context.Context, conversationID string, msgs []agent.Message) ([]StoredMessage, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: begin append messages: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	out := make([]StoredMessage, 0, len(msgs))

	for _, m := range msgs {
		var toolCallJSON, toolResponseJSON sql.NullString
		if m.Content.ToolCall != nil {
			b, err := json.Marshal(m.Content.ToolCall)
			if err != nil {
				return nil, &agent.JSONError{Message: err.Error()}
			}
			toolCallJSON = sql.NullString{String: string(b), Valid: true}
		}
		if m.Content.ToolResponse != nil {
			b, err := json.Marshal(m.Content.ToolResponse)
			if err != nil {
				return nil, &agent.JSONError{Message: err.Error()}
			}
			toolResponseJSON = sql.NullString{String: string(b), Valid: true}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, role, kind, text, tool_call, tool_response, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			conversationID, string(m.Role), int(m.Content.Kind), m.Content.Text, toolCallJSON, toolResponseJSON, now.Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("storage: append message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("storage: append message: %w", err)
		}
		out = append(out, StoredMessage{ID: id, ConversationID: conversationID, Role: m.Role, Content: m.Content, CreatedAt: now})
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now.Unix(), conversationID,
	); err != nil {
		return nil, fmt.Errorf("storage: touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("storage: commit append messages: %w", err)
	}
	return out, nil
}

// ListMessages returns every message in a conversation, oldest first.
func (db *DB) ListMessages(ctx context.Context, conversationID string) ([]StoredMessage, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, role, kind, text, tool_call, tool_response, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list messages: %w", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var (
			m                       StoredMessage
			role                    string
			kind                    int
			text                    string
			toolCallJSON, toolRespJSON sql.NullString
			createdAt               int64
		)
		if err := rows.Scan(&m.ID, &role, &kind, &text, &toolCallJSON, &toolRespJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan message: %w", err)
		}
		m.ConversationID = conversationID
		m.Role = agent.Role(role)
		m.CreatedAt = time.Unix(createdAt, 0)
		m.Content = agent.MessageContent{Kind: agent.ContentKind(kind), Text: text}

		if toolCallJSON.Valid {
			var tc agent.ToolCall
			if err := json.Unmarshal([]byte(toolCallJSON.String), &tc); err != nil {
				return nil, &agent.JSONError{Message: err.Error()}
			}
			m.Content.ToolCall = &tc
		}
		if toolRespJSON.Valid {
			var tr agent.ToolResponse
			if err := json.Unmarshal([]byte(toolRespJSON.String), &tr); err != nil {
				return nil, &agent.JSONError{Message: err.Error()}
			}
			m.Content.ToolResponse = &tr
		}

		out = append(out, m)
	}
	return out, rows.Err()
}
