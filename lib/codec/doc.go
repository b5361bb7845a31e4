// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Wattson's standard CBOR encoding
// configuration.
//
// Wattson uses CBOR for everything internal: the control socket
// protocol between wattsonctl and the daemon, and on-disk persisted
// state. Device configuration stays YAML because operators edit it by
// hand.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Wattson package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which keeps state files stable across rewrites.
//
// For buffer-oriented operations (state files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (control socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
