// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// notifier sends service status datagrams to the systemd notify
// socket. All sends are best-effort: a daemon run outside systemd has
// no socket and that is not an error. Safe for concurrent use: the
// ready announcement races the run loop's first reload in principle.
type notifier struct {
	logger *slog.Logger

	mu   sync.Mutex
	conn *net.UnixConn

	// dialed is set after the first send attempt so a missing socket
	// is only probed once.
	dialed bool
}

// notify sends one status message. Failures are logged at warning
// level and otherwise ignored.
func (n *notifier) notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.dialed {
		n.dialed = true
		socketPath := os.Getenv("NOTIFY_SOCKET")
		if socketPath == "" {
			return
		}
		conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: socketPath, Net: "unixgram"})
		if err != nil {
			n.logger.Warn("cannot connect to systemd notify socket", "socket", socketPath, "error", err)
			return
		}
		n.conn = conn
	}
	if n.conn == nil {
		return
	}
	if _, err := n.conn.Write([]byte(message)); err != nil {
		n.logger.Warn("cannot notify systemd", "error", err)
	}
}

// ready announces startup or reload completion.
func (n *notifier) ready() {
	n.notify("READY=1\n")
}

// reloading announces the start of a configuration reload. systemd
// requires MONOTONIC_USEC alongside RELOADING so it can match the
// reload to the subsequent READY.
func (n *notifier) reloading() {
	n.notify(fmt.Sprintf("RELOADING=1\nMONOTONIC_USEC=%d\n", monotonicMicros()))
}

// monotonicMicros returns CLOCK_MONOTONIC in microseconds, the unit
// systemd expects for MONOTONIC_USEC.
func monotonicMicros() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Sec*1_000_000 + ts.Nsec/1_000
}
