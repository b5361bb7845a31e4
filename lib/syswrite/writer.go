// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package syswrite

import (
	"context"
	"log/slog"
)

// Writer drains a Queue, one write at a time. It implements
// daemon.Service; register it on the supervisor alongside the
// components that feed the queue.
type Writer struct {
	queue  *Queue
	logger *slog.Logger
}

// NewWriter returns a Writer for queue.
func NewWriter(queue *Queue, logger *slog.Logger) *Writer {
	return &Writer{
		queue:  queue,
		logger: logger.With("component", "syswrite"),
	}
}

// Name implements daemon.Service.
func (w *Writer) Name() string { return "sysfs-writer" }

// Run performs queued writes until ctx is cancelled. Each write is
// synced before its sender is notified. A failed write is logged and
// reported to that sender only; the writer keeps going.
//
// On shutdown, writes still pending are resolved with the
// cancellation error so no sender is left waiting forever.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drainCancelled(ctx)
			return nil
		case <-w.queue.wake:
			for {
				// Cancellation wins over a pending wake: once the
				// context is done, entries get the cancellation
				// error, never a late write.
				if ctx.Err() != nil {
					w.drainCancelled(ctx)
					return nil
				}
				path, entry, ok := w.queue.take()
				if !ok {
					break
				}
				err := WriteSynced(path, entry.data)
				if err != nil {
					w.logger.Error("sysfs write failed", "path", path, "error", err)
				}
				entry.done <- Written{Err: err}
			}
		}
	}
}

// drainCancelled resolves every still-pending entry with the
// cancellation error.
func (w *Writer) drainCancelled(ctx context.Context) {
	for {
		path, entry, ok := w.queue.take()
		if !ok {
			return
		}
		w.logger.Warn("discarding pending sysfs write at shutdown", "path", path)
		entry.done <- Written{Err: ctx.Err()}
	}
}
