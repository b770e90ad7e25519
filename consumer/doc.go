// Package consumer implements the client side of the streaming event
// protocol: a pure reducer that folds the event sequence into per-agent
// message state and aggregate counters, and an HTTP client that initiates an
// invocation, feeds the incoming records through the reducer, and supports
// caller cancellation. The reducer is usable on its own for any transport;
// the client adds the wire handling and the transport failure mapping.
package consumer
