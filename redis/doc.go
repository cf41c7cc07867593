// Package redis forwards dispatched events to a Redis stream.
package redis
