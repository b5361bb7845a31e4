// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Package syswrite serializes and coalesces sysfs writes.
//
// Hardware attribute files tolerate exactly one writer at a time, and
// intermediate values are worthless: when a slider produces ten limit
// values in quick succession, only the last one needs to reach the
// kernel. A Queue keeps at most one pending write per path, replacing
// a superseded request and telling its sender so. A single Writer
// goroutine drains the queue, performing each write with an fsync so
// the value is durable before the sender hears about it.
//
// The Queue is shared by injection: cmd/wattsond constructs one and
// hands it to every component that writes managed attributes. There is
// no package-level instance to rebind.
package syswrite

import (
	"fmt"
	"os"
	"sync"
)

// Written is the single outcome delivered for each Send.
type Written struct {
	// Superseded is true when a later Send for the same path replaced
	// this request before the writer reached it. Err is nil in that
	// case: nothing was attempted.
	Superseded bool

	// Err is the result of the write attempt. Nil on success.
	Err error
}

// pending is one queued write.
type pending struct {
	data []byte
	done chan Written
}

// Queue holds at most one pending write per path. Producers call Send
// from any goroutine; one Writer consumes. The map is the only shared
// structure and the critical section covers only insert and remove.
type Queue struct {
	mu      sync.Mutex
	entries map[string]pending

	// wake nudges the writer when the queue becomes non-empty.
	// Capacity 1: a single token covers any number of pending paths,
	// since the writer drains the whole map per wakeup.
	wake chan struct{}
}

// NewQueue returns an empty queue. Pair it with a Writer registered on
// the supervisor.
func NewQueue() *Queue {
	return &Queue{
		entries: make(map[string]pending),
		wake:    make(chan struct{}, 1),
	}
}

// Send enqueues a write of data to path and returns a channel that
// delivers exactly one Written. If a request for the same path is
// already pending, it is replaced and its channel immediately delivers
// a superseded outcome.
func (q *Queue) Send(path string, data []byte) <-chan Written {
	done := make(chan Written, 1)

	q.mu.Lock()
	if old, exists := q.entries[path]; exists {
		old.done <- Written{Superseded: true}
	}
	q.entries[path] = pending{data: data, done: done}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return done
}

// take removes and returns one arbitrary pending entry. ok is false
// when the queue is empty.
func (q *Queue) take() (path string, entry pending, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for path, entry = range q.entries {
		delete(q.entries, path)
		return path, entry, true
	}
	return "", pending{}, false
}

// WriteSynced writes data to path and fsyncs before closing, so the
// value has reached the kernel when this returns. The file is created
// if absent, which only matters for the fabricated trees used in
// tests; real sysfs attributes always exist.
func WriteSynced(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
