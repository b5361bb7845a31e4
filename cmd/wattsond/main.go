// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Wattsond is the hardware power management daemon. It arbitrates the
// device power limit, serializes sysfs writes, and exposes a control
// socket for wattsonctl and other local clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wattson-project/wattson/lib/clock"
	"github.com/wattson-project/wattson/lib/daemon"
	"github.com/wattson-project/wattson/lib/process"
	"github.com/wattson-project/wattson/lib/syswrite"
	"github.com/wattson-project/wattson/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var stateDir string
	var controlSocket string
	var sysfsRoot string
	var statusInterval time.Duration
	var showVersion bool

	flag.StringVar(&configPath, "config", "/usr/share/wattson/device.yaml", "path to the device configuration file")
	flag.StringVar(&stateDir, "state-dir", "/var/lib/wattson", "directory for persisted daemon state")
	flag.StringVar(&controlSocket, "control-socket", "/run/wattson/control.sock", "path of the control socket")
	flag.StringVar(&sysfsRoot, "sysfs-root", "/sys", "sysfs mount point (overridable for testing)")
	flag.DurationVar(&statusInterval, "status-interval", 5*time.Minute, "interval between status log lines (0 disables)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("wattsond %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting wattsond",
		"version", version.Info(),
		"config", configPath,
		"control_socket", controlSocket,
	)

	commands := make(chan daemon.Command[command], 16)
	d := daemon.New(context.Background(), logger, commands)

	// The write queue has no configuration dependencies, so its
	// writer starts before the context hooks run. Everything else is
	// registered from Start once configuration is loaded.
	queue := syswrite.NewQueue()
	d.AddService(syswrite.NewWriter(queue, logger))

	dctx := newServiceContext(serviceContextOptions{
		queue:          queue,
		logger:         logger,
		configPath:     configPath,
		stateDir:       stateDir,
		controlSocket:  controlSocket,
		sysfsRoot:      sysfsRoot,
		statusInterval: statusInterval,
		clock:          clock.Real(),
		commands:       commands,
	})

	return d.Run(dctx)
}
