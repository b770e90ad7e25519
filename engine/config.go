package engine

import "time"

// Pricing is the credit cost model applied to completed agent responses: a
// minimum charge floor, then proportional to tokens. The numbers are policy,
// not structure; tests and deployments tune them independently.
type Pricing struct {
	// MinimumCharge is the floor charged for any completed response.
	MinimumCharge float64

	// PerToken is the credit cost per generated token.
	PerToken float64
}

// Cost returns the credits charged for a response of the given token count.
func (p Pricing) Cost(totalTokens int) float64 {
	cost := float64(totalTokens) * p.PerToken
	if cost < p.MinimumCharge {
		cost = p.MinimumCharge
	}
	return cost
}

// Config defines tuning and policy parameters for the engine.
type Config struct {
	// EventBufferSize sets the channel buffer size for the event stream.
	EventBufferSize int

	// HistoryWindow bounds how many recent messages are sent to the
	// generation backend as conversation history.
	HistoryWindow int

	// MinCreditBalance is the admission threshold: invocations from users
	// below this balance are rejected before any work is done.
	MinCreditBalance float64

	// MaxAutoTurns caps how many auto-reply turns may follow the initial
	// turn, bounding the cost of an unattended conversation.
	MaxAutoTurns int

	// AutoReplyDelay is the pause between an auto-reply turn completing and
	// the next one starting.
	AutoReplyDelay time.Duration

	// Pricing is the cost model applied to completed responses.
	Pricing Pricing
}

// DefaultConfig provides production-ready defaults.
var DefaultConfig = Config{
	EventBufferSize:  100,
	HistoryWindow:    8,
	MinCreditBalance: 1,
	MaxAutoTurns:     2,
	AutoReplyDelay:   time.Second,
	Pricing:          Pricing{MinimumCharge: 0.01, PerToken: 0.00002},
}
