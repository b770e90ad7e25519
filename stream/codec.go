package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// envelope is the flat wire representation shared by all event variants.
// Pointer fields distinguish "absent" from legitimate zero values (a cost of
// 0 or turn 0 must survive a round trip).
type envelope struct {
	Type        Type     `json:"type"`
	MessageID   string   `json:"messageId,omitempty"`
	AgentID     string   `json:"agentId,omitempty"`
	Content     string   `json:"content,omitempty"`
	Cost        *float64 `json:"cost,omitempty"`
	TotalTokens *int     `json:"totalTokens,omitempty"`
	Turn        *int     `json:"turn,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Marshal encodes an event as a single JSON record.
func Marshal(ev Event) ([]byte, error) {
	var env envelope
	switch e := ev.(type) {
	case UserMessage:
		env = envelope{Type: TypeUserMessage, MessageID: e.MessageID}
	case AgentStart:
		env = envelope{Type: TypeAgentStart, MessageID: e.MessageID, AgentID: e.AgentID}
	case Text:
		env = envelope{Type: TypeText, MessageID: e.MessageID, AgentID: e.AgentID, Content: e.Content}
	case AgentDone:
		env = envelope{Type: TypeAgentDone, MessageID: e.MessageID, AgentID: e.AgentID, Cost: &e.Cost, TotalTokens: &e.TotalTokens}
	case TurnComplete:
		env = envelope{Type: TypeTurnComplete, Turn: &e.Turn}
	case Error:
		env = envelope{Type: TypeError, Error: e.Message}
	case Done:
		env = envelope{Type: TypeDone}
	default:
		return nil, fmt.Errorf("stream: unknown event %T", ev)
	}
	return json.Marshal(env)
}

// Unmarshal decodes a single JSON record into its event variant.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("stream: decode record: %w", err)
	}
	switch env.Type {
	case TypeUserMessage:
		return UserMessage{MessageID: env.MessageID}, nil
	case TypeAgentStart:
		return AgentStart{MessageID: env.MessageID, AgentID: env.AgentID}, nil
	case TypeText:
		return Text{MessageID: env.MessageID, AgentID: env.AgentID, Content: env.Content}, nil
	case TypeAgentDone:
		ev := AgentDone{MessageID: env.MessageID, AgentID: env.AgentID}
		if env.Cost != nil {
			ev.Cost = *env.Cost
		}
		if env.TotalTokens != nil {
			ev.TotalTokens = *env.TotalTokens
		}
		return ev, nil
	case TypeTurnComplete:
		ev := TurnComplete{}
		if env.Turn != nil {
			ev.Turn = *env.Turn
		}
		return ev, nil
	case TypeError:
		return Error{Message: env.Error}, nil
	case TypeDone:
		return Done{}, nil
	default:
		return nil, fmt.Errorf("stream: unknown event type %q", env.Type)
	}
}

// Encoder writes events as newline-delimited JSON records.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Encode writes one event followed by a newline.
func (e *Encoder) Encode(ev Event) error {
	data, err := Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("stream: write record: %w", err)
	}
	return nil
}

// Decoder reads newline-delimited JSON records from a stream, one event per
// call, until the underlying reader is exhausted.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode returns the next event in the stream. It returns io.EOF once the
// stream is cleanly exhausted. Blank lines between records are skipped.
func (d *Decoder) Decode() (Event, error) {
	for {
		line, err := d.r.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				return Unmarshal(line)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("stream: read record: %w", err)
		}
	}
}
