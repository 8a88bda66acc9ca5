// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metrikahq/metrika/pkg/errors"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// The table name is interpolated into SQL, so it must stay a plain
// identifier.
func sanitizeTableName(table string) (string, error) {
	if table == "" {
		return "", fmt.Errorf("table name is required")
	}
	if !tableNamePattern.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// PostgresStore persists history in a PostgreSQL table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	table  string
	config Config
}

var _ Store = (*PostgresStore)(nil)

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	// Pool is the database connection pool. Required.
	Pool *pgxpool.Pool
	// TableName defaults to "conversation_messages".
	TableName string
	// Config carries truncation and TTL settings.
	Config Config
}

// NewPostgresStore validates the config and returns a store. Call
// Initialize to create the table on first use.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.Pool == nil {
		return nil, errors.New(errors.CodeInvalidInput, "database pool is required", nil)
	}

	table := cfg.TableName
	if table == "" {
		table = "conversation_messages"
	}
	table, err := sanitizeTableName(table)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, err.Error(), nil)
	}

	return &PostgresStore{
		pool:   cfg.Pool,
		table:  table,
		config: cfg.Config,
	}, nil
}

// Initialize creates the message table and its indexes if missing.
func (p *PostgresStore) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL,
			role VARCHAR(50) NOT NULL,
			content TEXT NOT NULL,
			tool_call_id VARCHAR(255),
			metadata JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_%s_session ON %s (session_id);
		CREATE INDEX IF NOT EXISTS idx_%s_session_created ON %s (session_id, created_at, id);
	`, p.table, p.table, p.table, p.table, p.table)

	if _, err := p.pool.Exec(ctx, query); err != nil {
		return errors.New(errors.CodeStorageError, "create conversation table", err)
	}
	return nil
}

func (p *PostgresStore) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var metadata []byte
	if msg.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(msg.Metadata); err != nil {
			return errors.New(errors.CodeInvalidInput, "marshal message metadata", err)
		}
	}

	var toolCallID *string
	if msg.ToolCallID != "" {
		toolCallID = &msg.ToolCallID
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, role, content, tool_call_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.table)

	if _, err := p.pool.Exec(ctx, query,
		msg.ID, sessionID, msg.Role, msg.Content, toolCallID, metadata, msg.CreatedAt); err != nil {
		return errors.New(errors.CodeStorageError, "append message", err)
	}
	return nil
}

func (p *PostgresStore) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, role, content, tool_call_id, metadata, created_at
		FROM %s
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, p.table)

	messages, err := p.queryMessages(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}

	if p.config.TruncationStrategy != nil && len(messages) > 0 {
		return p.config.TruncationStrategy.Truncate(ctx, messages)
	}
	return messages, nil
}

func (p *PostgresStore) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, role, content, tool_call_id, metadata, created_at
		FROM (
			SELECT id, session_id, role, content, tool_call_id, metadata, created_at
			FROM %s
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) sub
		ORDER BY created_at ASC, id ASC
	`, p.table)

	return p.queryMessages(ctx, query, sessionID, limit)
}

func (p *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, p.table)
	if _, err := p.pool.Exec(ctx, query, sessionID); err != nil {
		return errors.New(errors.CodeStorageError, "clear session", err)
	}
	return nil
}

func (p *PostgresStore) DeleteOldMessages(ctx context.Context, sessionID string, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	query := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1 AND created_at < $2`, p.table)
	if _, err := p.pool.Exec(ctx, query, sessionID, cutoff); err != nil {
		return errors.New(errors.CodeStorageError, "delete old messages", err)
	}
	return nil
}

// DeleteOldSessions drops every message belonging to sessions whose
// latest activity is older than the given age. Returns the number of
// deleted messages.
func (p *PostgresStore) DeleteOldSessions(ctx context.Context, inactiveFor time.Duration) (int64, error) {
	cutoff := time.Now().Add(-inactiveFor)
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE session_id IN (
			SELECT session_id FROM %s
			GROUP BY session_id
			HAVING MAX(created_at) < $1
		)
	`, p.table, p.table)

	tag, err := p.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, errors.New(errors.CodeStorageError, "delete old sessions", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStorageError, "query messages", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var toolCallID *string
		var metadata []byte

		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
			&toolCallID, &metadata, &msg.CreatedAt); err != nil {
			return nil, errors.New(errors.CodeStorageError, "scan message", err)
		}

		if toolCallID != nil {
			msg.ToolCallID = *toolCallID
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
				return nil, errors.New(errors.CodeStorageError, "decode message metadata", err)
			}
		}

		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
