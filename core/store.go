package core

import "context"

// AgentMessageOptions carries the optional fields of an agent message. ID
// supplies the pre-allocated message id announced in agent_start; a fresh id
// is generated when empty.
type AgentMessageOptions struct {
	ID          string
	RelatedToID string
	Cost        float64
}

// MessageStore persists conversation messages. Implementations must be safe
// for concurrent use; the engine writes from multiple goroutines in the
// concurrent modes.
type MessageStore interface {
	// CreateUserMessage appends a user-authored message to the conversation
	// and returns the stored record with its generated id.
	CreateUserMessage(ctx context.Context, conversationID, userID, content string, attachments []Attachment) (Message, error)

	// CreateAgentMessage appends an agent-authored message. The engine calls
	// this with the final accumulated content before it emits agent_done.
	CreateAgentMessage(ctx context.Context, conversationID, agentID, content string, opts AgentMessageOptions) (Message, error)

	// RecentMessages returns up to limit of the newest messages in the
	// conversation, oldest first, for use as generation history.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

// CreditLedger guards the one piece of shared mutable state in the system:
// the user's credit balance. Deduct must be conditional and atomic at the
// storage layer, "decrement by amount only if balance >= amount", so that
// two concurrent debits against an insufficient balance cannot both succeed.
type CreditLedger interface {
	// HasEnoughCredits reports whether the user's balance is at least min.
	HasEnoughCredits(ctx context.Context, userID string, min float64) (bool, error)

	// DeductCredits atomically decrements the balance by amount if the
	// current balance covers it. Returns false (no error) when it does not.
	DeductCredits(ctx context.Context, userID string, amount float64) (bool, error)
}

// UsageLog records per-generation token usage.
type UsageLog interface {
	LogUsage(ctx context.Context, rec UsageRecord) error
}

// Store aggregates the persistence capabilities the engine needs. The store
// packages (memory, sqlite, postgres) each implement the full interface.
type Store interface {
	MessageStore
	CreditLedger
	UsageLog
}
