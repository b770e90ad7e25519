package stream

// Type tags the variant of an Event on the wire.
type Type string

const (
	// TypeUserMessage acknowledges the persisted user message.
	TypeUserMessage Type = "user_message"
	// TypeAgentStart opens an agent's streaming message.
	TypeAgentStart Type = "agent_start"
	// TypeText carries one incremental content fragment.
	TypeText Type = "text"
	// TypeAgentDone closes an agent's message with its cost and token count.
	TypeAgentDone Type = "agent_done"
	// TypeTurnComplete marks a full round of agent responses.
	TypeTurnComplete Type = "turn_complete"
	// TypeError is the fatal terminal marker; no event follows it.
	TypeError Type = "error"
	// TypeDone is the successful terminal marker.
	TypeDone Type = "done"
)

// Event is one element of the engine's output sequence. The implementations
// are exactly the seven variants declared in this package.
type Event interface {
	Type() Type
	sealed()
}

// UserMessage reports the id the user's message was persisted under. Agent
// responses reference it via their related-to field.
type UserMessage struct {
	MessageID string `json:"messageId"`
}

// AgentStart announces that the agent will stream a message under the
// pre-allocated message id.
type AgentStart struct {
	MessageID string `json:"messageId"`
	AgentID   string `json:"agentId"`
}

// Text carries an incremental fragment of an agent's message. Content is
// never the full accumulated text.
type Text struct {
	MessageID string `json:"messageId"`
	AgentID   string `json:"agentId"`
	Content   string `json:"content"`
}

// AgentDone finalizes an agent's message. The content has been durably
// persisted by the time this event is emitted.
type AgentDone struct {
	MessageID   string  `json:"messageId"`
	AgentID     string  `json:"agentId"`
	Cost        float64 `json:"cost"`
	TotalTokens int     `json:"totalTokens"`
}

// TurnComplete marks that every agent targeted in turn Turn has finished.
type TurnComplete struct {
	Turn int `json:"turn"`
}

// Error aborts the invocation. It is terminal for the whole stream, not for
// a single agent.
type Error struct {
	Message string `json:"error"`
}

// Done marks successful completion of the invocation.
type Done struct{}

// Type implements Event.
func (UserMessage) Type() Type { return TypeUserMessage }

// Type implements Event.
func (AgentStart) Type() Type { return TypeAgentStart }

// Type implements Event.
func (Text) Type() Type { return TypeText }

// Type implements Event.
func (AgentDone) Type() Type { return TypeAgentDone }

// Type implements Event.
func (TurnComplete) Type() Type { return TypeTurnComplete }

// Type implements Event.
func (Error) Type() Type { return TypeError }

// Type implements Event.
func (Done) Type() Type { return TypeDone }

func (UserMessage) sealed()  {}
func (AgentStart) sealed()   {}
func (Text) sealed()         {}
func (AgentDone) sealed()    {}
func (TurnComplete) sealed() {}
func (Error) sealed()        {}
func (Done) sealed()         {}

// Terminal reports whether ev ends the invocation.
func Terminal(ev Event) bool {
	switch ev.(type) {
	case Error, Done:
		return true
	}
	return false
}
