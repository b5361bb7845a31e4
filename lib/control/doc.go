// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the daemon's CBOR request-response
// protocol over a Unix socket.
//
// Each connection carries exactly one request and one response, with
// one exception: the lease action answers its response and then holds
// the connection open. The connection itself is the lease's liveness
// signal; when the client closes it or exits, the server closes the
// lease token and the arbitrated limit is released. This gives remote
// clients the same crash-safety a local pipe descriptor gives
// in-process holders.
//
// The package is transport only. Action handlers are registered by
// cmd/wattsond, which owns the wiring to the arbiter and the
// supervisor.
package control
