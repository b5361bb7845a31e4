// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Package power exposes the supplemental power controls around the
// arbitrated limit: CPU frequency scaling governor, CPU boost, the
// battery charge ceiling, and the ACPI platform profile.
//
// These knobs are read-mostly and uncontended, so they are plain
// synchronous sysfs accessors with no actor in front of them. The one
// exception is the battery charge ceiling, whose writes go through the
// shared write queue: firmware ECs are slow to acknowledge the write
// and a settings slider can produce a burst of values.
package power
