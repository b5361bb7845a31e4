// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package powerlimit

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wattson-project/wattson/lib/config"
	"github.com/wattson-project/wattson/lib/testutil"
)

// duplicateFile dups the underlying descriptor, standing in for a
// token inherited across fork or passed to another process.
func duplicateFile(f *os.File) (*os.File, error) {
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), f.Name()), nil
}

// fakeDriver is an in-memory Driver with adjustable behavior. All
// fields behind mu so tests can poke it while the arbiter runs.
type fakeDriver struct {
	mu         sync.Mutex
	limit      uint32
	limitRange config.Range
	active     bool
	setErr     error
	writes     []uint32
}

func newFakeDriver(limit uint32) *fakeDriver {
	return &fakeDriver{
		limit:      limit,
		limitRange: config.Range{Min: 3, Max: 15},
		active:     true,
	}
}

func (d *fakeDriver) Limit() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limit, nil
}

func (d *fakeDriver) SetLimit(watts uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.setErr != nil {
		return d.setErr
	}
	d.limit = watts
	d.writes = append(d.writes, watts)
	return nil
}

func (d *fakeDriver) LimitRange() (config.Range, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limitRange, nil
}

func (d *fakeDriver) Active() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active, nil
}

func (d *fakeDriver) setActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = active
}

func (d *fakeDriver) currentLimit() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limit
}

func (d *fakeDriver) writeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

// startArbiter runs an arbiter over driver and returns a client. The
// arbiter stops with the test.
func startArbiter(t *testing.T, driver Driver, override uint32) *Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	arbiter := New(driver, override, slog.Default())
	go arbiter.Run(ctx)
	return arbiter.Client()
}

// waitForLimit polls the driver until it reports want, or fails.
func waitForLimit(t *testing.T, driver *fakeDriver, want uint32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if driver.currentLimit() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("driver limit = %d, want %d", driver.currentLimit(), want)
}

// waitForLeaseCount polls the lease table until key has count
// references, with zero meaning absent.
func waitForLeaseCount(t *testing.T, client *Client, key string, count uint32) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	var last map[string]uint32
	for time.Now().Before(deadline) {
		leases, err := client.Leases(ctx)
		if err != nil {
			t.Fatalf("listing leases: %v", err)
		}
		last = leases
		if leases[key] == count {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("lease table %v, want %q at %d", last, key, count)
}

func TestSetLimitWritesThrough(t *testing.T) {
	driver := newFakeDriver(15)
	client := startArbiter(t, driver, 6)
	ctx := context.Background()

	if err := client.SetLimit(ctx, 10); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	if got := driver.currentLimit(); got != 10 {
		t.Fatalf("driver limit = %d, want 10", got)
	}

	got, err := client.Limit(ctx)
	if err != nil {
		t.Fatalf("Limit: %v", err)
	}
	if got != 10 {
		t.Fatalf("Limit = %d, want 10", got)
	}
}

func TestSetLimitRejectsOutOfRange(t *testing.T) {
	driver := newFakeDriver(15)
	client := startArbiter(t, driver, 6)
	ctx := context.Background()

	for _, watts := range []uint32{0, 2, 16} {
		err := client.SetLimit(ctx, watts)
		if !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("SetLimit(%d) = %v, want ErrOutOfRange", watts, err)
		}
	}
	if got := driver.currentLimit(); got != 15 {
		t.Fatalf("driver limit = %d, want untouched 15", got)
	}
}

func TestQueriesPassThrough(t *testing.T) {
	driver := newFakeDriver(12)
	client := startArbiter(t, driver, 6)
	ctx := context.Background()

	validRange, err := client.LimitRange(ctx)
	if err != nil {
		t.Fatalf("LimitRange: %v", err)
	}
	if validRange != (config.Range{Min: 3, Max: 15}) {
		t.Fatalf("LimitRange = %+v", validRange)
	}

	active, err := client.Active(ctx)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if !active {
		t.Fatal("Active = false, want true")
	}
}

func TestLeaseAppliesOverrideAndRestores(t *testing.T) {
	driver := newFakeDriver(15)
	client := startArbiter(t, driver, 6)
	ctx := context.Background()

	token, err := client.EnterLease(ctx, "updater")
	if err != nil {
		t.Fatalf("EnterLease: %v", err)
	}
	if token == nil {
		t.Fatal("EnterLease returned nil token with leasing enabled")
	}
	if got := driver.currentLimit(); got != 6 {
		t.Fatalf("driver limit = %d, want override 6", got)
	}

	// A valid request during arbitration succeeds but is discarded,
	// and is not replayed on release.
	if err := client.SetLimit(ctx, 15); err != nil {
		t.Fatalf("SetLimit during lease: %v", err)
	}
	if got := driver.currentLimit(); got != 6 {
		t.Fatalf("driver limit = %d after discarded request, want 6", got)
	}

	// Invalid requests are still rejected during arbitration.
	if err := client.SetLimit(ctx, 99); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("SetLimit(99) = %v, want ErrOutOfRange", err)
	}

	token.Close()
	waitForLimit(t, driver, 15)
	waitForLeaseCount(t, client, "updater", 0)
}

func TestLeaseRefcounting(t *testing.T) {
	driver := newFakeDriver(15)
	client := startArbiter(t, driver, 6)
	ctx := context.Background()

	first, err := client.EnterLease(ctx, "updater")
	if err != nil {
		t.Fatalf("EnterLease: %v", err)
	}
	second, err := client.EnterLease(ctx, "updater")
	if err != nil {
		t.Fatalf("EnterLease: %v", err)
	}
	waitForLeaseCount(t, client, "updater", 2)

	writesBefore := driver.writeCount()
	first.Close()
	waitForLeaseCount(t, client, "updater", 1)
	if got := driver.currentLimit(); got != 6 {
		t.Fatalf("driver limit = %d after partial release, want 6", got)
	}
	if got := driver.writeCount(); got != writesBefore {
		t.Fatalf("partial release wrote to the driver (%d -> %d writes)", writesBefore, got)
	}

	second.Close()
	waitForLeaseCount(t, client, "updater", 0)
	waitForLimit(t, driver, 15)
}

func TestLeasesUnderDistinctKeys(t *testing.T) {
	driver := newFakeDriver(15)
	client := startArbiter(t, driver, 6)
	ctx := context.Background()

	downloadToken, err := client.EnterLease(ctx, "download")
	if err != nil {
		t.Fatalf("EnterLease: %v", err)
	}
	installToken, err := client.EnterLease(ctx, "install")
	if err != nil {
		t.Fatalf("EnterLease: %v", err)
	}

	downloadToken.Close()
	waitForLeaseCount(t, client, "download", 0)
	if got := driver.currentLimit(); got != 6 {
		t.Fatalf("driver limit = %d with a lease still held, want 6", got)
	}

	installToken.Close()
	waitForLeaseCount(t, client, "install", 0)
	waitForLimit(t, driver, 15)
}

func TestLeasingDisabled(t *testing.T) {
	driver := newFakeDriver(15)
	client := startArbiter(t, driver, 0)
	ctx := context.Background()

	token, err := client.EnterLease(ctx, "updater")
	if err != nil {
		t.Fatalf("EnterLease: %v", err)
	}
	if token != nil {
		token.Close()
		t.Fatal("EnterLease returned a token with leasing disabled")
	}

	leases, err := client.Leases(ctx)
	if err != nil {
		t.Fatalf("Leases: %v", err)
	}
	if len(leases) != 0 {
		t.Fatalf("lease table %v, want empty", leases)
	}
	if got := driver.currentLimit(); got != 15 {
		t.Fatalf("driver limit = %d, want untouched 15", got)
	}
}

func TestInactiveDriverSkipsArbitration(t *testing.T) {
	driver := newFakeDriver(15)
	driver.setActive(false)
	client := startArbiter(t, driver, 6)
	ctx := context.Background()

	token, err := client.EnterLease(ctx, "updater")
	if err != nil {
		t.Fatalf("EnterLease: %v", err)
	}
	if token == nil {
		t.Fatal("EnterLease returned nil token")
	}
	waitForLeaseCount(t, client, "updater", 1)
	if got := driver.currentLimit(); got != 15 {
		t.Fatalf("driver limit = %d while inactive, want untouched 15", got)
	}

	token.Close()
	waitForLeaseCount(t, client, "updater", 0)
	if got := driver.currentLimit(); got != 15 {
		t.Fatalf("driver limit = %d after release while inactive, want 15", got)
	}
}

func TestZeroReadingSkipsArbitration(t *testing.T) {
	driver := newFakeDriver(0)
	client := startArbiter(t, driver, 6)
	ctx := context.Background()

	token, err := client.EnterLease(ctx, "updater")
	if err != nil {
		t.Fatalf("EnterLease: %v", err)
	}
	waitForLeaseCount(t, client, "updater", 1)
	if got := driver.writeCount(); got != 0 {
		t.Fatalf("arbiter wrote %d times on a zero reading, want 0", got)
	}
	token.Close()
	waitForLeaseCount(t, client, "updater", 0)
}

func TestHolderProcessPipeSemantics(t *testing.T) {
	// The token is a real pipe write end: it also closes when the
	// holding process exits. Simulate by duplicating and closing both.
	driver := newFakeDriver(15)
	client := startArbiter(t, driver, 6)
	ctx := context.Background()

	token, err := client.EnterLease(ctx, "updater")
	if err != nil {
		t.Fatalf("EnterLease: %v", err)
	}
	duplicate, err := duplicateFile(token)
	if err != nil {
		t.Fatalf("duplicating token: %v", err)
	}

	token.Close()
	time.Sleep(50 * time.Millisecond)
	if got := driver.currentLimit(); got != 6 {
		t.Fatalf("driver limit = %d with a duplicate open, want 6", got)
	}

	duplicate.Close()
	waitForLimit(t, driver, 15)
}

func TestShutdownClosesLivenessWatchers(t *testing.T) {
	driver := newFakeDriver(15)
	arbiter := New(driver, 6, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- arbiter.Run(ctx) }()

	token, err := arbiter.Client().EnterLease(context.Background(), "updater")
	if err != nil {
		t.Fatalf("EnterLease: %v", err)
	}
	defer token.Close()

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "arbiter exit"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The read end of a still-held token closes with the arbiter, so
	// writes from the holder's side start failing with EPIPE.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := token.Write([]byte("x")); err != nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("token pipe still open after arbiter shutdown")
}

func TestClientHonorsContext(t *testing.T) {
	// No arbiter running: submissions must fail once ctx expires
	// instead of blocking forever.
	arbiter := New(newFakeDriver(15), 6, slog.Default())
	client := arbiter.Client()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := client.SetLimit(ctx, 10); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("SetLimit = %v, want context.DeadlineExceeded", err)
	}
}
