// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/wattson-project/wattson/lib/clock"
	"github.com/wattson-project/wattson/lib/config"
	"github.com/wattson-project/wattson/lib/control"
	"github.com/wattson-project/wattson/lib/daemon"
	"github.com/wattson-project/wattson/lib/power"
	"github.com/wattson-project/wattson/lib/powerlimit"
	"github.com/wattson-project/wattson/lib/sysfs"
	"github.com/wattson-project/wattson/lib/syswrite"
)

// persistedState is what survives restarts: the knobs the user set
// through the control socket, re-applied to hardware on boot. Zero
// values mean "never set" and leave the hardware alone.
type persistedState struct {
	PowerLimitWatts uint32 `cbor:"power_limit_watts"`
	ChargeLimit     int32  `cbor:"charge_limit"`
}

// command is wattsond's domain command: a state mutation originated
// by a control handler, applied and persisted on the run loop
// goroutine so no locking is needed around the state value.
type command struct {
	update func(*persistedState)
}

// controls bundles the config-derived accessors that reload can swap.
type controls struct {
	battery power.Battery
	profile power.Profile
}

type serviceContextOptions struct {
	logger         *slog.Logger
	configPath     string
	stateDir       string
	controlSocket  string
	sysfsRoot      string
	statusInterval time.Duration
	clock          clock.Clock
	queue          *syswrite.Queue
	commands       chan<- daemon.Command[command]
}

// serviceContext is the domain side of the daemon: it owns the
// configuration, the persisted state, and the wiring between the
// control socket and the arbiter.
type serviceContext struct {
	opts  serviceContextOptions
	state persistedState

	root sysfs.Root
	cpu  power.CPU

	// arbiter is nil when the device configuration has no power
	// limit section; handlers answer not-configured then.
	arbiter *powerlimit.Client

	// mu guards controls across reload. Handlers run on the control
	// server's connection goroutines.
	mu       sync.RWMutex
	controls controls

	// limitMethod remembers the configured method so reload can
	// detect a change it cannot apply without a restart.
	limitMethod config.LimitMethod
}

func newServiceContext(opts serviceContextOptions) *serviceContext {
	return &serviceContext{opts: opts}
}

func (s *serviceContext) StatePath() string {
	return filepath.Join(s.opts.stateDir, "wattsond.cbor")
}

func (s *serviceContext) State() any { return &s.state }

func (s *serviceContext) ReadConfig() (any, error) {
	return config.Load(s.opts.configPath)
}

func (s *serviceContext) Start(ctx context.Context, cfg any, d *daemon.Daemon[command]) error {
	device := cfg.(*config.Device)
	logger := s.opts.logger

	s.root = sysfs.New(s.opts.sysfsRoot)
	s.cpu = power.NewCPU(s.root)
	s.setControls(device)

	driver, err := powerlimit.NewDriver(device, s.root, logger)
	switch {
	case errors.Is(err, powerlimit.ErrNotConfigured):
		logger.Info("no power limit configured, arbiter disabled")
	case err != nil:
		return fmt.Errorf("constructing power limit driver: %w", err)
	default:
		s.limitMethod = device.PowerLimit.Method
		arbiter := powerlimit.New(driver, device.PowerLimit.DownloadModeLimit, logger)
		s.arbiter = arbiter.Client()
		d.AddService(arbiter)
	}

	server := control.NewServer(s.opts.controlSocket, logger)
	s.registerHandlers(server)
	d.AddService(server)

	if s.opts.statusInterval > 0 && s.arbiter != nil {
		d.AddService(&statusReporter{
			logger:   logger,
			clock:    s.opts.clock,
			interval: s.opts.statusInterval,
			arbiter:  s.arbiter,
		})
	}

	s.applyPersistedState(ctx, logger)
	return nil
}

// applyPersistedState pushes remembered settings back to hardware.
// Failures are logged, not fatal: a missing battery attribute on one
// boot should not take the whole daemon down.
func (s *serviceContext) applyPersistedState(ctx context.Context, logger *slog.Logger) {
	if s.arbiter != nil && s.state.PowerLimitWatts != 0 {
		if err := s.arbiter.SetLimit(ctx, s.state.PowerLimitWatts); err != nil {
			logger.Warn("failed to re-apply persisted power limit",
				"watts", s.state.PowerLimitWatts, "error", err)
		}
	}
	if s.state.ChargeLimit != 0 {
		battery := s.snapshot().battery
		if _, err := battery.SetChargeLimit(s.state.ChargeLimit); err != nil {
			logger.Warn("failed to re-apply persisted charge limit",
				"percent", s.state.ChargeLimit, "error", err)
		}
	}
}

// Reload swaps the config-derived controls. The power limit method
// cannot be swapped while the arbiter runs; a change there is logged
// and takes effect on the next start.
func (s *serviceContext) Reload(ctx context.Context, cfg any, d *daemon.Daemon[command]) error {
	device := cfg.(*config.Device)
	s.setControls(device)

	method := config.LimitMethod("")
	if device.PowerLimit != nil {
		method = device.PowerLimit.Method
	}
	if method != s.limitMethod {
		s.opts.logger.Warn("power limit method changed in configuration, restart required",
			"running", s.limitMethod, "configured", method)
	}
	s.opts.logger.Info("configuration reloaded", "config", s.opts.configPath)
	return nil
}

func (s *serviceContext) HandleCommand(ctx context.Context, cmd command, d *daemon.Daemon[command]) error {
	if cmd.update != nil {
		cmd.update(&s.state)
	}
	return nil
}

func (s *serviceContext) setControls(device *config.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = controls{
		battery: power.NewBattery(s.root, device.BatteryChargeLimit, s.opts.queue),
		profile: power.NewProfile(s.root, device.PerformanceProfile),
	}
}

func (s *serviceContext) snapshot() controls {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controls
}

// recordState queues a state mutation for the run loop, followed by a
// state file write. Best effort: if the daemon is shutting down and
// the channel is full, the setting is simply not remembered.
func (s *serviceContext) recordState(update func(*persistedState)) {
	select {
	case s.opts.commands <- daemon.ContextCommand(command{update: update}):
	default:
		s.opts.logger.Warn("command channel full, state change not recorded")
		return
	}
	select {
	case s.opts.commands <- daemon.WriteState[command]():
	default:
		s.opts.logger.Warn("command channel full, state not persisted")
	}
}
