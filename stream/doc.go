// Package stream defines the streaming event protocol: the closed set of
// typed events emitted by the orchestration engine and consumed incrementally
// by clients, together with the newline-delimited JSON codec used on the
// wire. The event set is sealed (Event can only be implemented inside this
// package), so a switch over the concrete types covers every case the engine
// can ever emit.
//
// Ordering contract (per invocation): UserMessage is always first when
// emitted at all; every AgentStart precedes all Text events for its message
// id, which precede its AgentDone; TurnComplete for turn N follows every
// AgentDone of turn N; Done is always last on success; Error is always last
// on failure and nothing follows it.
package stream
