// Package postgres provides a core.Store backed by PostgreSQL via pgx. The
// credit debit uses a guarded UPDATE so two concurrent debits against an
// insufficient balance cannot both succeed, regardless of how many server
// instances share the database.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parleyhq/parley/core"
)

// Store is a PostgreSQL-backed core.Store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at connString and applies the schema.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		attachments JSONB,
		related_to_id TEXT,
		cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS credits (
		user_id TEXT PRIMARY KEY,
		balance DOUBLE PRECISION NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS usage_log (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		model_name TEXT NOT NULL,
		tokens_used BIGINT NOT NULL,
		cost DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// SetBalance creates or replaces a user's credit balance.
func (s *Store) SetBalance(ctx context.Context, userID string, balance float64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credits (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance`,
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
	err := s.pool.QueryRow(ctx, `SELECT balance FROM credits WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, author_id, role, content, attachments, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.ConversationID, msg.AuthorID, msg.Role, msg.Content, attachJSON, msg.CreatedAt,
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, author_id, role, content, related_to_id, cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
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
	var lim any = limit
	if limit <= 0 {
		lim = nil // LIMIT NULL: no limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, author_id, role, content, attachments, related_to_id, cost, created_at
		 FROM (
		   SELECT * FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
		 ) recent ORDER BY created_at ASC, id ASC`,
		conversationID, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var msg core.Message
		var attachJSON []byte
		var relatedTo *string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.AuthorID, &msg.Role, &msg.Content, &attachJSON, &relatedTo, &msg.Cost, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(attachJSON) > 0 {
			if err := json.Unmarshal(attachJSON, &msg.Attachments); err != nil {
				return nil, fmt.Errorf("failed to decode attachments: %w", err)
			}
		}
		if relatedTo != nil {
			msg.RelatedToID = *relatedTo
		}
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

// DeductCredits implements core.CreditLedger.
func (s *Store) DeductCredits(ctx context.Context, userID string, amount float64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE credits SET balance = balance - $1 WHERE user_id = $2 AND balance >= $1`,
		amount, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deduct credits: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LogUsage implements core.UsageLog.
func (s *Store) LogUsage(ctx context.Context, rec core.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_log (user_id, conversation_id, message_id, agent_id, model_name, tokens_used, cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.UserID, rec.ConversationID, rec.MessageID, rec.AgentID, rec.ModelName, rec.TokensUsed, rec.Cost, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}
