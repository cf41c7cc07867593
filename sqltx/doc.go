// Package sqltx binds database/sql transactions to event dispatch
// notifications, using savepoints for nesting.
package sqltx
