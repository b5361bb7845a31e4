// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Package powerlimit arbitrates access to the device's power limit.
//
// The limit is one scarce register with many interested parties: the
// user slider, the download manager that wants the machine clamped
// while it saturates the disk, and whatever else learns to ask. The
// Arbiter is the single owner. It runs as an actor: every mutation of
// its state happens inside one run loop fed by one ordered channel, so
// the package needs no locks around the lease table or the cached
// previous limit.
//
// Leasing ("download mode"): a caller that needs the clamp takes a
// lease keyed by a caller-chosen string and receives a liveness token,
// the write end of a pipe. While any lease exists, the limit is forced
// to the configured override and direct SetLimit calls are accepted
// but deliberately discarded — arbitration is transient and the
// external limit is expected to be re-asserted afterwards, not
// replayed from a queue. When the last lease goes away the previously
// observed limit is restored. Closing the token — explicitly, or
// implicitly when the holding process dies — is the release signal;
// the arbiter notices end-of-stream on its end of the pipe, so a
// crashed client can never wedge the machine at the override.
//
// Hardware access goes through a Driver, selected from device
// configuration. Drivers speak the device's natural unit (whole
// watts) and convert to their register units internally.
package powerlimit
