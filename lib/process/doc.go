// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides helpers shared by Wattson binary
// entrypoints.
package process
