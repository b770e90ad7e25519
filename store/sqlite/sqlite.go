// Package sqlite provides a durable core.Store backed by an embedded SQLite
// database (modernc.org/sqlite, no cgo). Suitable for single-node
// deployments; the credit debit relies on a guarded UPDATE so concurrent
// debits against an insufficient balance cannot both succeed.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parleyhq/parley/core"
)

// Store is a SQLite-backed core.Store.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath and applies the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		attachments TEXT,
		related_to_id TEXT,
		cost REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS credits (
		user_id TEXT PRIMARY KEY,
		balance REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS usage_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		model_name TEXT NOT NULL,
		tokens_used INTEGER NOT NULL,
		cost REAL NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// SetBalance creates or replaces a user's credit balance.
func (s *Store) SetBalance(ctx context.Context, userID string, balance float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credits (user_id, balance) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET balance = excluded.balance`,
		userID, balance,
	)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

// Balance returns the user's current balance (zero for unknown users).
func (s *Store) Balance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM credits WHERE user_id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query balance: %w", err)
	}
	return balance, nil
}

// CreateUserMessage implements core.MessageStore.
func (s *Store) CreateUserMessage(ctx context.Context, conversationID, userID, content string, attachments []core.Attachment) (core.Message, error) {
	msg := core.Message{
		ID:             core.NewID(),
		ConversationID: conversationID,
		AuthorID:       userID,
		Role:           "user",
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      time.Now().UTC(),
	}
	var attachJSON []byte
	if len(attachments) > 0 {
		var err error
		attachJSON, err = json.Marshal(attachments)
		if err != nil {
			return core.Message{}, fmt.Errorf("failed to encode attachments: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, author_id, role, content, attachments, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.AuthorID, msg.Role, msg.Content, nullableString(attachJSON), msg.CreatedAt,
	)
	if err != nil {
		return core.Message{}, fmt.Errorf("failed to insert user message: %w", err)
	}
	return msg, nil
}

// CreateAgentMessage implements core.MessageStore.
func (s *Store) CreateAgentMessage(ctx context.Context, conversationID, agentID, content string, opts core.AgentMessageOptions) (core.Message, error) {
	id := opts.ID
	if id == "" {
		id = core.NewID()
	}
	msg := core.Message{
		ID:             id,
		ConversationID: conversationID,
		AuthorID:       agentID,
		Role:           "agent",
		Content:        content,
		RelatedToID:    opts.RelatedToID,
		Cost:           opts.Cost,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, author_id, role, content, related_to_id, cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.AuthorID, msg.Role, msg.Content, msg.RelatedToID, msg.Cost, msg.CreatedAt,
	)
	if err != nil {
		return core.Message{}, fmt.Errorf("failed to insert agent message: %w", err)
	}
	return msg, nil
}

// RecentMessages implements core.MessageStore, returning up to limit of the
// newest messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]core.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, author_id, role, content, attachments, related_to_id, cost, created_at
		 FROM (
		   SELECT * FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		 ) ORDER BY created_at ASC, id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var msg core.Message
		var attachJSON, relatedTo sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.AuthorID, &msg.Role, &msg.Content, &attachJSON, &relatedTo, &msg.Cost, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if attachJSON.Valid && attachJSON.String != "" {
			if err := json.Unmarshal([]byte(attachJSON.String), &msg.Attachments); err != nil {
				return nil, fmt.Errorf("failed to decode attachments: %w", err)
			}
		}
		msg.RelatedToID = relatedTo.String
		out = append(out, msg)
	}
	return out, rows.Err()
}

// HasEnoughCredits implements core.CreditLedger.
func (s *Store) HasEnoughCredits(ctx context.Context, userID string, min float64) (bool, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= min, nil
}

// DeductCredits implements core.CreditLedger. The balance guard lives in the
// UPDATE itself, so the check and the decrement are one atomic statement.
func (s *Store) DeductCredits(ctx context.Context, userID string, amount float64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credits SET balance = balance - ? WHERE user_id = ? AND balance >= ?`,
		amount, userID, amount,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deduct credits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// LogUsage implements core.UsageLog.
func (s *Store) LogUsage(ctx context.Context, rec core.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_log (user_id, conversation_id, message_id, agent_id, model_name, tokens_used, cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.ConversationID, rec.MessageID, rec.AgentID, rec.ModelName, rec.TokensUsed, rec.Cost, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
