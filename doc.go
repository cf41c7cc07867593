// Package txevents provides transaction-aware event buffering.
//
// A Dispatcher classifies every raised event: transaction-bound events are
// held in an in-memory buffer until the enclosing database transaction
// commits, discarded when it rolls back, and everything else is forwarded
// immediately. Nested transactions (savepoints) demote surviving events to
// the parent level on inner commit, so delivery only ever happens after the
// outermost commit.
//
// The host wires its transaction lifecycle to the dispatcher either by
// calling NotifyBegin, NotifyCommit and NotifyRollback directly, or through
// the driver bindings in the sqltx and pgxtx subpackages. Delivery goes
// through a Forwarder: the in-process ListenerRegistry, or the broker
// forwarders in the rabbitmq and redis subpackages.
package txevents
