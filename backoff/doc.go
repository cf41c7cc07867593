// Package backoff provides exponential retry delays with full jitter and a
// context-aware sleep, used by the downstream forwarders when a publish
// attempt fails.
package backoff
