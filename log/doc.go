// Package log defines the logging interface and typed logging fields used
// across lib-txevents.
//
// Adapters (such as the zap package) implement Logger so host applications
// can plug their own backend without changing call sites.
package log
