package consumer

import "github.com/parleyhq/parley/stream"

// StreamingMessage is the accumulated view of one in-flight agent message.
// Content is append-only while IsStreaming is true and frozen afterwards.
type StreamingMessage struct {
	AgentID     string
	Content     string
	IsStreaming bool
}

// State is the consumer-facing view of an invocation. All aggregate fields
// are derived from the event sequence: replaying the same events through
// Reduce always reproduces the same State.
type State struct {
	IsStreaming   bool
	UserMessageID string
	CurrentTurn   int
	TotalCost     float64
	Err           string
	Messages      map[string]StreamingMessage
}

// NewState returns the empty state a new invocation starts from.
func NewState() State {
	return State{Messages: make(map[string]StreamingMessage)}
}

// clone copies s deeply enough that Reduce never aliases a previous state's
// message map.
func (s State) clone() State {
	msgs := make(map[string]StreamingMessage, len(s.Messages))
	for k, v := range s.Messages {
		msgs[k] = v
	}
	s.Messages = msgs
	return s
}

// Reduce folds one event into the state and returns the next state. It is a
// pure function: the input state is never mutated.
func Reduce(s State, ev stream.Event) State {
	next := s.clone()
	switch e := ev.(type) {
	case stream.UserMessage:
		next.UserMessageID = e.MessageID
	case stream.AgentStart:
		next.Messages[e.MessageID] = StreamingMessage{AgentID: e.AgentID, IsStreaming: true}
	case stream.Text:
		// Fragments for an unknown id are dropped; the protocol ordering
		// guarantees prevent them from a well-behaved engine. A finalized
		// message is frozen and ignores late fragments.
		msg, ok := next.Messages[e.MessageID]
		if !ok || !msg.IsStreaming {
			return next
		}
		msg.Content += e.Content
		next.Messages[e.MessageID] = msg
	case stream.AgentDone:
		if msg, ok := next.Messages[e.MessageID]; ok {
			msg.IsStreaming = false
			next.Messages[e.MessageID] = msg
		}
		next.TotalCost += e.Cost
	case stream.TurnComplete:
		// Set, never incremented, to tolerate replays and out-of-order
		// delivery.
		next.CurrentTurn = e.Turn
	case stream.Error:
		next.Err = e.Message
		next.IsStreaming = false
		next.finalizeAll()
	case stream.Done:
		next.IsStreaming = false
		next.finalizeAll()
	}
	return next
}

// finalizeAll freezes any message still marked streaming; used on terminal
// events so truncated streams do not leave dangling spinners.
func (s *State) finalizeAll() {
	for id, msg := range s.Messages {
		if msg.IsStreaming {
			msg.IsStreaming = false
			s.Messages[id] = msg
		}
	}
}
