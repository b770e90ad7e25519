// Package engine implements the turn orchestration engine: the per-request
// state machine that decides which agents respond to a user message, runs
// them sequentially or concurrently according to the conversation mode,
// multiplexes their streaming output into a single ordered event sequence,
// persists messages and usage as a side effect of each completed turn, and
// enforces credit-based admission control.
//
// An invocation is started with Invoke and produces a lazy sequence of
// stream.Event values. Every invocation ends with exactly one terminal
// marker: stream.Done on success or stream.Error on failure. Caller
// cancellation stops event delivery promptly without a terminal marker.
package engine
