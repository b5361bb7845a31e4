// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called. Timer and ticker operations register
// pending waiters that fire when the clock advances past their
// deadline.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock for testing. Time advances only
// when Advance is called.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

// fakeWaiter represents a pending timer or ticker.
type fakeWaiter struct {
	deadline time.Time

	// channel receives the fire time. Buffered with capacity 1;
	// overflowing ticks are dropped, matching time.Ticker.
	channel chan time.Time

	// interval is non-zero for ticker waiters. After firing, the
	// waiter is rescheduled at deadline + interval.
	interval time.Duration

	// stopped is set by Ticker.Stop. Stopped waiters are skipped
	// during Advance and garbage-collected.
	stopped bool

	// fired is set after a one-shot waiter fires so overlapping
	// Advance calls cannot double-fire it.
	fired bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives after duration d elapses. If
// d <= 0, the channel receives immediately without registering a
// waiter.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.waiters = append(c.waiters, &fakeWaiter{
		deadline: c.current.Add(d),
		channel:  channel,
	})
	return channel
}

// NewTicker returns a Ticker that delivers ticks on its C channel at
// the specified interval. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		channel:  channel,
		interval: d,
	}
	c.waiters = append(c.waiters, waiter)

	return &Ticker{
		C: channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// Advance moves the clock forward by d and fires all waiters whose
// deadlines fall within the new time, in deadline order. Channel sends
// are non-blocking: a tick that finds the buffer full is dropped. For
// tickers, an advance spanning multiple intervals fires once per
// interval.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.current.Add(d)
	for {
		waiter := c.nextDueWaiter(target)
		if waiter == nil {
			break
		}
		c.current = waiter.deadline
		select {
		case waiter.channel <- c.current:
		default:
		}
		if waiter.interval > 0 {
			waiter.deadline = waiter.deadline.Add(waiter.interval)
		} else {
			waiter.fired = true
		}
	}
	c.current = target
	c.compactWaiters()
}

// nextDueWaiter returns the live waiter with the earliest deadline at
// or before target, or nil. Called with mu held.
func (c *FakeClock) nextDueWaiter(target time.Time) *fakeWaiter {
	live := c.waiters[:0:0]
	for _, waiter := range c.waiters {
		if !waiter.stopped && !waiter.fired {
			live = append(live, waiter)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].deadline.Before(live[j].deadline)
	})
	if len(live) == 0 || live[0].deadline.After(target) {
		return nil
	}
	return live[0]
}

// compactWaiters drops stopped and fired waiters. Called with mu held.
func (c *FakeClock) compactWaiters() {
	live := c.waiters[:0]
	for _, waiter := range c.waiters {
		if !waiter.stopped && !waiter.fired {
			live = append(live, waiter)
		}
	}
	c.waiters = live
}
