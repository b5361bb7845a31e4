// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Wattson device configuration.
//
// Configuration is a single YAML file describing which hardware
// controls exist on this device and how to reach them: the power
// limit method and its bounds, the download-mode override, the
// platform performance profile, and the battery charge limit
// attribute. There are no fallbacks or automatic discovery — a control
// that is not configured is reported to callers as not available, and
// an absent file loads as the empty configuration.
//
// The file is operator-edited, which is why this is YAML rather than
// the CBOR used for daemon-internal state.
package config
