// Package pgxtx binds native pgx transactions to event dispatch
// notifications. Nested scopes ride on pgx's savepoint-backed nested
// transactions.
package pgxtx
