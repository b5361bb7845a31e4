// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides a time abstraction with real and fake
// implementations. Production code takes a clock.Clock; tests inject
// a FakeClock and advance it explicitly, making time-dependent
// behavior deterministic.
package clock
