// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemon hosts Wattson's long-running services and owns
// process lifecycle: startup, readiness notification, configuration
// reload, and shutdown.
//
// The Daemon is domain-agnostic. Everything it knows about the program
// it hosts comes through two narrow surfaces: registered [Service]
// values, which it runs and supervises, and a [Context], which
// supplies configuration, persisted state, and command handling. The
// wattsond binary provides both.
//
// Failure policy is fail-fast: the first service to return a non-nil
// error takes the whole daemon down. A half-running hardware daemon is
// worse than a restart — systemd restarts us with a clean slate,
// whereas a dead arbiter behind a live control socket would quietly
// stop enforcing limits.
//
// Signals: SIGTERM and SIGINT begin a graceful shutdown with a nil
// result. SIGHUP re-reads configuration through the Context and keeps
// running even if that fails. SIGQUIT aborts with an error result.
// Readiness and reload progress are reported to the systemd notify
// socket when one is present.
package daemon
