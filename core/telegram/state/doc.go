// Package state keeps per-chat dialog steps and scratch values in memory.
// Each Manager owns its own step handlers; nothing is shared between instances.
package state
