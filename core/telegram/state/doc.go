// Package state provides a per-identity conversation session manager for
// Telegram bots. A session tracks the active flow, its current step and the
// data collected so far. The package is intentionally domain-agnostic so it
// can back any multi-step conversation.
package state
