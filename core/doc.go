// Package core defines the shared vocabulary of Parley: conversation modes,
// agent descriptors and catalogs, messages with attachments, and the
// persistence interfaces (message store, credit ledger, usage log) that the
// orchestration engine depends on. Concrete store implementations live under
// store/; the engine only ever sees these interfaces.
package core
