package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zeim839/agentkit/internal/storage"
	"github.com/zeim839/agentkit/pkg/agent"
)

// Manager holds a shared Agent and a process-lifetime cache of
// conversation id to Context. All exported methods are safe for
// concurrent use.
type Manager struct {
	mu  sync.RWMutex
	ag  *agent.Agent
	db  *storage.DB

	ctxMu sync.RWMutex
	ctxs  map[string]*Context
}

// New creates a Manager backed by ag and db.
func New(ag *agent.Agent, db *storage.DB) *Manager {
	return &Manager{ag: ag, db: db, ctxs: make(map[string]*Context)}
}

// Agent returns the shared agent, taking the reader lock.
func (m *Manager) Agent() *agent.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ag
}

// ListConversations returns every conversation, most recently updated
// first.
func (m *Manager) ListConversations(ctx context.Context) ([]storage.Conversation, error) {
	return m.db.ListConversations(ctx)
}

// CreateConversation inserts a new conversation row with a generated id
// and returns it.
func (m *Manager) CreateConversation(ctx context.Context, name string) (storage.Conversation, error) {
	id := uuid.NewString()
	return m.db.CreateConversation(ctx, id, name)
}

// RemoveConversation deletes a conversation (cascading its messages) and
// evicts any cached Context for it.
func (m *Manager) RemoveConversation(ctx context.Context, id string) error {
	if err := m.db.DeleteConversation(ctx, id); err != nil {
		return err
	}
	m.ctxMu.Lock()
	delete(m.ctxs, id)
	m.ctxMu.Unlock()
	return nil
}

// RenameConversation updates a conversation's title; a non-existent id
// fails with the same row-not-found error GetConversation would produce.
func (m *Manager) RenameConversation(ctx context.Context, id, name string) error {
	if _, err := m.db.GetConversation(ctx, id); err != nil {
		return err
	}
	now := time.Now().Unix()
	if _, err := m.db.Conn().ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, name, now, id,
	); err != nil {
		return fmt.Errorf("storage: rename conversation: %w", err)
	}
	return nil
}

// GetConversation returns the cached Context for id, hydrating one after
// verifying the id exists if it is not already cached.
func (m *Manager) GetConversation(ctx context.Context, id string) (*Context, error) {
	m.ctxMu.RLock()
	c, ok := m.ctxs[id]
	m.ctxMu.RUnlock()
	if ok {
		return c, nil
	}

	m.ctxMu.Lock()
	defer m.ctxMu.Unlock()
	if c, ok := m.ctxs[id]; ok {
		return c, nil
	}

	if _, err := m.db.GetConversation(ctx, id); err != nil {
		return nil, err
	}

	c = newContext(m.Agent(), m.db, id)
	m.ctxs[id] = c
	return c, nil
}
