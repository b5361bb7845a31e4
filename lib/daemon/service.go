// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import "context"

// Service is a supervised unit of work. Run is called once, on its own
// goroutine, and is expected to block until its work is done or ctx is
// cancelled. Returning nil after cancellation is a normal exit;
// returning a non-nil error is fatal to the whole daemon.
//
// A Service may also finish early on its own: a one-shot startup task
// that returns nil simply leaves the supervision set.
type Service interface {
	// Name identifies the service in logs.
	Name() string

	// Run executes the service until completion or cancellation.
	Run(ctx context.Context) error
}
