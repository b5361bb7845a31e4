// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wattson-project/wattson/lib/statefile"
)

// ErrNoServices is returned by Run when no service has been
// registered. A daemon supervising nothing is a wiring bug, not a
// valid idle mode.
var ErrNoServices = errors.New("daemon: no services registered")

// Context supplies the domain side of the daemon: where state and
// configuration live, and what to do at startup, on reload, and for
// each inbound command. M is the domain command type.
//
// All hooks are called from the daemon's run loop goroutine, so a
// Context needs no internal locking for state it only touches from
// hooks.
type Context[M any] interface {
	// StatePath is the location of the persisted state file.
	StatePath() string

	// State returns a pointer to the state value. The daemon decodes
	// the state file into it before Start and encodes it on every
	// WriteState command.
	State() any

	// ReadConfig loads the configuration from disk. Called once
	// before Start and again on every reload. The daemon treats the
	// returned value as opaque and passes it to Start or Reload.
	ReadConfig() (any, error)

	// Start is called once, after state and configuration have been
	// loaded and before the run loop begins. This is where the
	// Context applies persisted state to hardware and registers any
	// services that depend on configuration. An error aborts startup.
	Start(ctx context.Context, config any, d *Daemon[M]) error

	// Reload is called with freshly-read configuration after SIGHUP
	// or a ReadConfig command. Errors are logged and the daemon
	// continues on the previous configuration.
	Reload(ctx context.Context, config any, d *Daemon[M]) error

	// HandleCommand processes one domain command. An error is fatal
	// to the daemon.
	HandleCommand(ctx context.Context, command M, d *Daemon[M]) error
}

// completion reports one service's exit to the run loop.
type completion struct {
	name string
	err  error
}

// Daemon supervises services and runs the process event loop. Create
// one with New, register services with AddService, then call Run.
type Daemon[M any] struct {
	logger      *slog.Logger
	commands    <-chan Command[M]
	completions chan completion
	notify      notifier

	// root is the parent of every service context. cancel tears the
	// whole tree down.
	root   context.Context
	cancel context.CancelFunc

	// active counts services that have been registered and not yet
	// observed to complete. Touched only by the goroutine driving
	// AddService and Run (registration happens either before Run or
	// from a Context hook, which the run loop itself invokes).
	active int
}

// New creates a Daemon whose services are children of ctx. The daemon
// reads inbound commands from commands; the caller keeps the send
// side and may hand it to transport components.
func New[M any](ctx context.Context, logger *slog.Logger, commands <-chan Command[M]) *Daemon[M] {
	root, cancel := context.WithCancel(ctx)
	return &Daemon[M]{
		logger:      logger.With("component", "daemon"),
		commands:    commands,
		completions: make(chan completion),
		notify:      notifier{logger: logger},
		root:        root,
		cancel:      cancel,
	}
}

// AddService registers a service and starts it immediately on its own
// goroutine. The returned CancelFunc stops that service alone; the
// daemon's shutdown cancels all of them.
func (d *Daemon[M]) AddService(service Service) context.CancelFunc {
	ctx, cancel := context.WithCancel(d.root)
	d.active++
	d.logger.Debug("service starting", "service", service.Name())
	go func() {
		err := service.Run(ctx)
		d.completions <- completion{name: service.Name(), err: err}
	}()
	return cancel
}

// Run executes the daemon until a terminal event: a service failure, a
// termination signal, or closure of the command channel. It returns
// nil for a clean signal-driven shutdown and the first error observed
// otherwise. All services are cancelled and drained before Run
// returns, whatever the cause.
func (d *Daemon[M]) Run(dctx Context[M]) error {
	if d.active == 0 {
		return ErrNoServices
	}
	defer d.cancel()

	if err := d.startContext(dctx); err != nil {
		// Services registered before Run only exit on cancellation;
		// draining without cancelling first would wait forever.
		d.cancel()
		d.drain(nil)
		return err
	}

	// Readiness is announced by a service rather than inline: it
	// exercises the completes-successfully path of the supervision
	// set on every boot, and any future startup barrier can move into
	// its Run without touching the loop below.
	d.AddService(readyAnnouncer{notify: &d.notify})

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(terminate)
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGQUIT)
	defer signal.Stop(quit)

	var result error
loop:
	for {
		select {
		case c := <-d.completions:
			d.active--
			if c.err != nil {
				d.logger.Error("service failed", "service", c.name, "error", c.err)
				result = c.err
				break loop
			}
			d.logger.Debug("service finished", "service", c.name)

		case sig := <-terminate:
			d.logger.Info("shutting down", "signal", sig)
			break loop

		case <-quit:
			result = errors.New("daemon: got SIGQUIT")
			break loop

		case <-reload:
			d.reloadContext(dctx)

		case command, ok := <-d.commands:
			if !ok {
				result = errors.New("daemon: command channel closed")
				break loop
			}
			if err := d.handleCommand(dctx, command); err != nil {
				result = err
				break loop
			}
		}
	}

	d.cancel()
	d.drain(&result)
	return result
}

// startContext loads persisted state and configuration and runs the
// Context's start hook. A corrupt state file is downgraded to the
// default state with a warning; refusing to boot over a damaged state
// file would turn a bad shutdown into a bricked daemon.
func (d *Daemon[M]) startContext(dctx Context[M]) error {
	found, err := statefile.Load(dctx.StatePath(), dctx.State())
	if err != nil {
		if !errors.Is(err, statefile.ErrCorrupt) {
			return err
		}
		d.logger.Warn("state file corrupt, starting from defaults", "path", dctx.StatePath(), "error", err)
	}
	if !found {
		d.logger.Info("no state file, starting from defaults", "path", dctx.StatePath())
	}

	config, err := dctx.ReadConfig()
	if err != nil {
		return err
	}
	return dctx.Start(d.root, config, d)
}

// reloadContext re-reads configuration and runs the reload hook,
// bracketing the attempt with systemd reload notifications. All
// errors are logged and swallowed: a daemon with stale configuration
// beats no daemon.
func (d *Daemon[M]) reloadContext(dctx Context[M]) {
	d.notify.reloading()
	defer d.notify.ready()

	config, err := dctx.ReadConfig()
	if err != nil {
		d.logger.Error("failed to read configuration, keeping previous", "error", err)
		return
	}
	if err := dctx.Reload(d.root, config, d); err != nil {
		d.logger.Error("reload hook failed, keeping previous configuration", "error", err)
	}
}

// handleCommand dispatches one inbound command.
func (d *Daemon[M]) handleCommand(dctx Context[M], command Command[M]) error {
	switch command.kind {
	case kindContext:
		return dctx.HandleCommand(d.root, command.payload, d)
	case kindReadConfig:
		d.reloadContext(dctx)
		return nil
	case kindWriteState:
		return statefile.Save(dctx.StatePath(), dctx.State())
	}
	return nil
}

// drain waits for every remaining service to finish. When result is
// non-nil and currently clean, the first late error is folded into it;
// an error already present is authoritative and later ones are only
// logged.
func (d *Daemon[M]) drain(result *error) {
	for d.active > 0 {
		c := <-d.completions
		d.active--
		if c.err == nil {
			continue
		}
		d.logger.Error("service failed during shutdown", "service", c.name, "error", c.err)
		if result != nil && *result == nil {
			*result = c.err
		}
	}
}

// readyAnnouncer is the one-shot service that tells systemd the
// daemon is up. Exits immediately after announcing.
type readyAnnouncer struct {
	notify *notifier
}

func (readyAnnouncer) Name() string { return "ready-announcer" }

func (r readyAnnouncer) Run(context.Context) error {
	r.notify.ready()
	return nil
}
