package core

import "time"

// Attachment is an inline binary payload (image, document) attached to a user
// message and forwarded to the generation backend.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data,omitempty"`
}

// Message is a persisted conversation entry authored either by the user or by
// an agent. Agent messages reference the user message that triggered them via
// RelatedToID and carry the cost charged for their generation.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	AuthorID       string       `json:"author_id"`
	Role           string       `json:"role"` // "user" or "agent"
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	RelatedToID    string       `json:"related_to_id,omitempty"`
	Cost           float64      `json:"cost,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// UsageRecord captures the token usage and cost of a single agent generation
// for audit and billing purposes.
type UsageRecord struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	AgentID        string    `json:"agent_id"`
	ModelName      string    `json:"model_name"`
	TokensUsed     int       `json:"tokens_used"`
	Cost           float64   `json:"cost"`
	CreatedAt      time.Time `json:"created_at"`
}
