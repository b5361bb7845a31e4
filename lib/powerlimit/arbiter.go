// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package powerlimit

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// Arbiter owns the power limit. It implements daemon.Service; all
// state below the requests channel is touched only by Run's goroutine.
type Arbiter struct {
	driver Driver

	// override is the arbitrated limit applied while leases exist.
	// Zero disables leasing: EnterLease hands out no tokens.
	override uint32

	logger *slog.Logger

	// requests carries client commands in submission order.
	requests chan request

	// expiries carries lease keys whose liveness token has closed.
	// Fed by watcher goroutines, one per token.
	expiries chan string

	// leases maps lease key to reference count.
	leases map[string]uint32

	// previous is the limit observed when the lease table went from
	// empty to non-empty, restored when it empties again. hasPrevious
	// distinguishes "nothing cached" from a cached value.
	previous    uint32
	hasPrevious bool

	// watchers tracks the read ends of open liveness tokens. Shutdown
	// closes them to unblock the watcher goroutines, which would
	// otherwise sit in Read until every holder went away. Guarded by
	// watchersMu because watchers remove themselves from their own
	// goroutines.
	watchersMu sync.Mutex
	watchers   map[*os.File]struct{}
}

// New creates an Arbiter over driver. overrideWatts is the limit
// enforced while leases are held; zero disables leasing.
func New(driver Driver, overrideWatts uint32, logger *slog.Logger) *Arbiter {
	return &Arbiter{
		driver:   driver,
		override: overrideWatts,
		logger:   logger.With("component", "powerlimit"),
		requests: make(chan request),
		expiries: make(chan string),
		leases:   make(map[string]uint32),
		watchers: make(map[*os.File]struct{}),
	}
}

// Client returns a handle for submitting commands to the arbiter.
// Clients are cheap and safe to share across goroutines.
func (a *Arbiter) Client() *Client {
	return &Client{requests: a.requests}
}

// Name implements daemon.Service.
func (a *Arbiter) Name() string { return "power-arbiter" }

// Run processes commands and lease expiries until ctx is cancelled.
// Commands are handled strictly in arrival order. A command racing a
// lease expiry is resolved by whichever the select picks first; no
// ordering is promised between the two, and tests pin behavior for
// both outcomes.
func (a *Arbiter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// Leases are not unwound here: the daemon is exiting and
			// restoring the previous limit on the way out would fight
			// the next boot's state application. The token read ends
			// are closed so their watcher goroutines exit too.
			a.closeWatchers()
			return nil
		case r := <-a.requests:
			a.handle(ctx, r)
		case key := <-a.expiries:
			a.releaseLease(key)
		}
	}
}

// handle processes one client request. Reply channels are buffered, so
// a caller that gave up never blocks the loop.
func (a *Arbiter) handle(ctx context.Context, r request) {
	switch r := r.(type) {
	case setLimitRequest:
		r.reply <- a.setLimit(r.watts)
	case getLimitRequest:
		value, err := a.driver.Limit()
		r.reply <- valueReply[uint32]{value: value, err: err}
	case getRangeRequest:
		value, err := a.driver.LimitRange()
		r.reply <- rangeReply{value: value, err: err}
	case isActiveRequest:
		value, err := a.driver.Active()
		r.reply <- valueReply[bool]{value: value, err: err}
	case enterLeaseRequest:
		token, err := a.enterLease(ctx, r.key)
		r.reply <- valueReply[*os.File]{value: token, err: err}
	case listLeasesRequest:
		snapshot := make(map[string]uint32, len(a.leases))
		for key, count := range a.leases {
			snapshot[key] = count
		}
		r.reply <- snapshot
	}
}

// setLimit applies a caller-requested limit. While leases exist the
// request is accepted and discarded: the override stays on the
// hardware and the discarded value is not replayed later. Arbitration
// is transient and whoever sets limits is expected to re-assert theirs
// afterwards; replaying a stale request minutes later would surprise
// everyone involved.
func (a *Arbiter) setLimit(watts uint32) error {
	validRange, err := a.driver.LimitRange()
	if err != nil {
		return err
	}
	if !validRange.Contains(watts) {
		return ErrOutOfRange
	}
	if len(a.leases) > 0 {
		a.logger.Debug("discarding limit request during arbitration", "watts", watts)
		return nil
	}
	return a.driver.SetLimit(watts)
}

// enterLease adds one reference for key and hands back a fresh
// liveness token. The first lease switches the hardware to the
// override.
func (a *Arbiter) enterLease(ctx context.Context, key string) (*os.File, error) {
	if a.override == 0 {
		return nil, nil
	}

	readEnd, writeEnd, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	a.leases[key]++
	a.addWatcher(readEnd)
	go a.watchToken(ctx, readEnd, key)

	// Bookkeeping first, hardware second: a failed write must not
	// leave the refcount out of step with the token we hand out.
	if err := a.applyArbitration(); err != nil {
		a.logger.Error("failed to apply arbitrated limit", "key", key, "error", err)
	}
	return writeEnd, nil
}

// watchToken blocks until the token's peer closes, then reports the
// lease key for release. Runs on its own goroutine, one per token.
func (a *Arbiter) watchToken(ctx context.Context, readEnd *os.File, key string) {
	defer a.removeWatcher(readEnd)
	buffer := make([]byte, 64)
	for {
		// The token is write-only for the holder by convention; any
		// bytes that do arrive are drained and ignored. Read returns
		// io.EOF once every write end is closed, including by process
		// exit.
		if _, err := readEnd.Read(buffer); err != nil {
			break
		}
	}
	select {
	case a.expiries <- key:
	case <-ctx.Done():
	}
}

func (a *Arbiter) addWatcher(readEnd *os.File) {
	a.watchersMu.Lock()
	a.watchers[readEnd] = struct{}{}
	a.watchersMu.Unlock()
}

func (a *Arbiter) removeWatcher(readEnd *os.File) {
	a.watchersMu.Lock()
	delete(a.watchers, readEnd)
	a.watchersMu.Unlock()
	readEnd.Close()
}

// closeWatchers closes every open token read end. The racing close in
// removeWatcher is harmless; a second Close on an os.File just
// reports ErrClosed, which nobody reads.
func (a *Arbiter) closeWatchers() {
	a.watchersMu.Lock()
	defer a.watchersMu.Unlock()
	for readEnd := range a.watchers {
		readEnd.Close()
	}
}

// releaseLease drops one reference for key, restoring the previous
// limit when the last lease goes away.
func (a *Arbiter) releaseLease(key string) {
	count, exists := a.leases[key]
	if !exists {
		return
	}
	if count > 1 {
		a.leases[key] = count - 1
		return
	}
	delete(a.leases, key)
	if len(a.leases) == 0 {
		if err := a.applyArbitration(); err != nil {
			a.logger.Error("failed to restore previous limit", "key", key, "error", err)
		}
	}
}

// applyArbitration reconciles the hardware with the lease table:
// override applied while leases exist, previous limit restored once
// they are gone. Skipped entirely while the driver is inactive — the
// register is not writable then, and the cached previous value must
// survive for a later release to restore.
func (a *Arbiter) applyArbitration() error {
	active, err := a.driver.Active()
	if err != nil {
		return err
	}
	if !active {
		a.logger.Debug("limit method inactive, skipping arbitration update")
		return nil
	}
	if a.override == 0 {
		return nil
	}

	current, err := a.driver.Limit()
	if err != nil {
		return err
	}
	if current == 0 {
		// A zero reading means the interface is not usable right now
		// (wrong power profile, early boot). Leave it alone.
		return nil
	}

	if len(a.leases) == 0 {
		if a.hasPrevious {
			a.logger.Debug("leaving download mode", "restore_watts", a.previous)
			restore := a.previous
			a.previous = 0
			a.hasPrevious = false
			return a.driver.SetLimit(restore)
		}
		return nil
	}

	if !a.hasPrevious {
		a.logger.Debug("entering download mode", "previous_watts", current)
		a.previous = current
		a.hasPrevious = true
	}
	if current != a.override {
		return a.driver.SetLimit(a.override)
	}
	return nil
}
