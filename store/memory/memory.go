// Package memory provides a volatile core.Store implementation backed by
// process-local maps. It is safe for concurrent access and best suited for
// tests and ephemeral demo servers. Returned messages are copies to prevent
// external mutation of internal state.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
)

// Store is an in-memory core.Store.
type Store struct {
	mu       sync.RWMutex
	messages map[string][]core.Message // conversation id -> append-ordered messages
	balances map[string]float64
	usage    []core.UsageRecord
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		messages: make(map[string][]core.Message),
		balances: make(map[string]float64),
	}
}

// SetBalance sets a user's credit balance; used for seeding and tests.
func (s *Store) SetBalance(userID string, balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
}

// Balance returns the user's current credit balance.
func (s *Store) Balance(userID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[userID]
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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return msg, nil
}

// RecentMessages implements core.MessageStore, returning up to limit of the
// newest messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]core.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// HasEnoughCredits implements core.CreditLedger.
func (s *Store) HasEnoughCredits(ctx context.Context, userID string, min float64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[userID] >= min, nil
}

// DeductCredits implements core.CreditLedger. The check and the decrement
// happen under one lock, so concurrent debits against an insufficient
// balance cannot both succeed.
func (s *Store) DeductCredits(ctx context.Context, userID string, amount float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[userID] < amount {
		return false, nil
	}
	s.balances[userID] -= amount
	return true, nil
}

// LogUsage implements core.UsageLog.
func (s *Store) LogUsage(ctx context.Context, rec core.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, rec)
	return nil
}

// UsageRecords returns a copy of all recorded usage entries.
func (s *Store) UsageRecords() []core.UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.UsageRecord, len(s.usage))
	copy(out, s.usage)
	return out
}
