// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

// commandKind discriminates the daemon's inbound commands.
type commandKind int

const (
	kindContext commandKind = iota
	kindReadConfig
	kindWriteState
)

// Command is one message on the daemon's inbound channel. M is the
// Context-specific command type; the daemon forwards it without
// looking inside.
type Command[M any] struct {
	kind    commandKind
	payload M
}

// ContextCommand wraps a domain command for the Context to handle.
func ContextCommand[M any](payload M) Command[M] {
	return Command[M]{kind: kindContext, payload: payload}
}

// ReadConfig asks the daemon to re-read configuration and run the
// Context's reload hook, exactly as if SIGHUP had arrived.
func ReadConfig[M any]() Command[M] {
	return Command[M]{kind: kindReadConfig}
}

// WriteState asks the daemon to persist the Context's current state.
func WriteState[M any]() Command[M] {
	return Command[M]{kind: kindWriteState}
}
