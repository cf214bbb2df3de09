package storage

import (
	"context"
	"fmt"
)

// migration is one linear, versioned schema step. Migrations never
// change once released — a later change gets a new version.
type migration struct {
	version int
	sql     string
}

// migrations is the built-in Conversation/Message schema, applied in
// order. version 1 creates both tables with a cascading foreign key so
// deleting a conversation deletes its messages.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	kind            INTEGER NOT NULL,
	text            TEXT NOT NULL DEFAULT '',
	tool_call       TEXT,
	tool_response   TEXT,
	created_at      INTEGER NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		ON DELETE CASCADE ON UPDATE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, id);
`,
	},
}

// migrate creates the _migrations bookkeeping table if absent, then
// applies every migration whose version is not already recorded, each
// inside its own transaction.
func (db *DB) migrate(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS _migrations (
	version    INTEGER PRIMARY KEY,
	sql        TEXT NOT NULL,
	applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
`)
	if err != nil {
		return fmt.Errorf("storage: creating migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		row := db.conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM _migrations WHERE version = ?`, m.version)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("storage: checking migration %d: %w", m.version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage: beginning migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("storage: applying migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations (version, sql) VALUES (?, ?)`, m.version, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("storage: recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("storage: committing migration %d: %w", m.version, err)
		}
	}
	return nil
}
