// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/wattson-project/wattson/lib/clock"
	"github.com/wattson-project/wattson/lib/powerlimit"
)

// statusReporter periodically logs the arbiter's view of the world.
// Purely observational; a failed read is logged and the next tick
// tries again.
type statusReporter struct {
	logger   *slog.Logger
	clock    clock.Clock
	interval time.Duration
	arbiter  *powerlimit.Client
}

func (r *statusReporter) Name() string { return "status-reporter" }

func (r *statusReporter) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.report(ctx)
		}
	}
}

func (r *statusReporter) report(ctx context.Context) {
	watts, err := r.arbiter.Limit(ctx)
	if err != nil {
		r.logger.Warn("status: failed to read power limit", "error", err)
		return
	}
	leases, err := r.arbiter.Leases(ctx)
	if err != nil {
		r.logger.Warn("status: failed to list leases", "error", err)
		return
	}
	r.logger.Info("status", "limit_watts", watts, "leases", len(leases))
}
