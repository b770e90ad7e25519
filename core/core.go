package core

import (
	"strings"

	"github.com/google/uuid"
)

// Mode selects the interaction topology for a turn: which agents respond and
// whether they run one after another or concurrently.
type Mode string

const (
	// ModeCollaborative runs system-1 then system-2 strictly in sequence.
	ModeCollaborative Mode = "collaborative"
	// ModeParallel dispatches system-1 and system-2 concurrently.
	ModeParallel Mode = "parallel"
	// ModeExpertCouncil dispatches the configured council concurrently.
	ModeExpertCouncil Mode = "expert-council"
	// ModeDebate runs proponent, opponent and (optionally) moderator in that
	// fixed order.
	ModeDebate Mode = "debate"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeCollaborative, ModeParallel, ModeExpertCouncil, ModeDebate:
		return true
	}
	return false
}

// Concurrent reports whether agents targeted under this mode are dispatched
// concurrently rather than sequentially.
func (m Mode) Concurrent() bool {
	return m == ModeParallel || m == ModeExpertCouncil
}

// Agent is a named generation configuration: the model that backs it, the
// system instruction it is primed with, and display metadata for clients.
type Agent struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ModelName         string `json:"model_name"`
	SystemInstruction string `json:"system_instruction,omitempty"`
	Description       string `json:"description,omitempty"`
	AvatarColor       string `json:"avatar_color,omitempty"`
}

// Catalog resolves agent ids to agent descriptors. A nil catalog resolves
// nothing.
type Catalog map[string]Agent

// Lookup returns the agent for id and whether it exists.
func (c Catalog) Lookup(id string) (Agent, bool) {
	a, ok := c[id]
	return a, ok
}

// ByName returns the agents whose display name matches name case-insensitively.
// Used by mention targeting, which only acts on a unique match.
func (c Catalog) ByName(name string) []Agent {
	var out []Agent
	for _, a := range c {
		if strings.EqualFold(a.Name, name) {
			out = append(out, a)
		}
	}
	return out
}

// Roles assigns catalog agents to the positions a mode draws from. Every id
// referenced here must resolve in the catalog at the moment it is used.
type Roles struct {
	System1   string   `json:"system1"`
	System2   string   `json:"system2"`
	Proponent string   `json:"proponent,omitempty"`
	Opponent  string   `json:"opponent,omitempty"`
	Moderator string   `json:"moderator,omitempty"`
	Council   []string `json:"council,omitempty"`
}

// NewID generates a unique identifier for messages and invocations.
func NewID() string { return uuid.NewString() }
