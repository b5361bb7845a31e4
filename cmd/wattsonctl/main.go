// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Wattsonctl is the command line client for the wattsond control
// socket. Subcommands map one to one onto control protocol actions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/wattson-project/wattson/lib/control"
	"github.com/wattson-project/wattson/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// command is one wattsonctl subcommand.
type command struct {
	name    string
	summary string
	usage   string
	run     func(ctx context.Context, client *control.Client, args []string) error
}

var commands = []command{
	{"get-limit", "print the current power limit in watts", "get-limit", runGetLimit},
	{"set-limit", "set the power limit in watts", "set-limit <watts>", runSetLimit},
	{"get-limit-range", "print the valid power limit range", "get-limit-range", runGetLimitRange},
	{"is-active", "report whether the limit method is usable", "is-active", runIsActive},
	{"list-leases", "print held power limit leases", "list-leases", runListLeases},
	{"enter-lease", "hold a power limit lease until interrupted", "enter-lease <key>", runEnterLease},
	{"write-state", "ask the daemon to persist its state now", "write-state", runWriteState},
	{"reload", "ask the daemon to re-read its configuration", "reload", runReload},
	{"get-charge-limit", "print the battery charge ceiling", "get-charge-limit", runGetChargeLimit},
	{"set-charge-limit", "set the battery charge ceiling in percent", "set-charge-limit <percent>", runSetChargeLimit},
	{"list-governors", "print the available CPU scaling governors", "list-governors", runListGovernors},
	{"get-governor", "print the current CPU scaling governor", "get-governor", runGetGovernor},
	{"set-governor", "select a CPU scaling governor", "set-governor <name>", runSetGovernor},
	{"get-boost", "print the CPU boost state", "get-boost", runGetBoost},
	{"set-boost", "enable or disable CPU boost", "set-boost <on|off>", runSetBoost},
	{"list-profiles", "print the available platform profiles", "list-profiles", runListProfiles},
	{"get-profile", "print the current platform profile", "get-profile", runGetProfile},
	{"set-profile", "select a platform profile", "set-profile <name>", runSetProfile},
}

func run(args []string) error {
	flags := pflag.NewFlagSet("wattsonctl", pflag.ContinueOnError)
	socketPath := flags.String("socket", "/run/wattson/control.sock", "path of the wattsond control socket")
	showVersion := flags.BoolP("version", "V", false, "print version information and exit")
	flags.Usage = func() { printUsage(flags) }

	// Flags may precede the subcommand; everything after it belongs
	// to the subcommand.
	flags.SetInterspersed(false)
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("wattsonctl %s\n", version.Info())
		return nil
	}

	remaining := flags.Args()
	if len(remaining) == 0 {
		printUsage(flags)
		return fmt.Errorf("subcommand required")
	}

	name := remaining[0]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		client := control.NewClient(*socketPath)
		if err := c.run(ctx, client, remaining[1:]); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
	printUsage(flags)
	return fmt.Errorf("unknown subcommand %q", name)
}

func printUsage(flags *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage: wattsonctl [flags] <subcommand> [args]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Flags:")
	fmt.Fprint(os.Stderr, flags.FlagUsages())
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Subcommands:")
	w := tabwriter.NewWriter(os.Stderr, 2, 8, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\t%s\n", c.usage, c.summary)
	}
	w.Flush()
}

func runGetLimit(ctx context.Context, client *control.Client, args []string) error {
	var response control.LimitResponse
	if err := client.Call(ctx, control.ActionGetLimit, nil, &response); err != nil {
		return err
	}
	fmt.Printf("%d W\n", response.Watts)
	return nil
}

func runSetLimit(ctx context.Context, client *control.Client, args []string) error {
	watts, err := parseUint32Arg(args, "watts")
	if err != nil {
		return err
	}
	return client.Call(ctx, control.ActionSetLimit, map[string]any{"watts": watts}, nil)
}

func runGetLimitRange(ctx context.Context, client *control.Client, args []string) error {
	var response control.LimitRangeResponse
	if err := client.Call(ctx, control.ActionGetLimitRange, nil, &response); err != nil {
		return err
	}
	fmt.Printf("%d-%d W\n", response.Min, response.Max)
	return nil
}

func runIsActive(ctx context.Context, client *control.Client, args []string) error {
	var response control.ActiveResponse
	if err := client.Call(ctx, control.ActionIsActive, nil, &response); err != nil {
		return err
	}
	fmt.Println(response.Active)
	return nil
}

func runListLeases(ctx context.Context, client *control.Client, args []string) error {
	var response control.LeasesResponse
	if err := client.Call(ctx, control.ActionListLeases, nil, &response); err != nil {
		return err
	}
	if len(response.Leases) == 0 {
		fmt.Println("no leases held")
		return nil
	}
	keys := make([]string, 0, len(response.Leases))
	for key := range response.Leases {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	w := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tCOUNT")
	for _, key := range keys {
		fmt.Fprintf(w, "%s\t%d\n", key, response.Leases[key])
	}
	return w.Flush()
}

// runEnterLease holds the lease until the process is interrupted. The
// connection closing on exit is what releases the lease, so there is
// nothing to clean up on the way out.
func runEnterLease(ctx context.Context, client *control.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one argument: the lease key")
	}
	lease, err := client.EnterLease(ctx, args[0])
	if err != nil {
		return err
	}
	defer lease.Close()
	if !lease.Granted {
		fmt.Println("leasing is disabled on this device")
		return nil
	}
	fmt.Printf("holding lease %q, interrupt to release\n", args[0])
	<-ctx.Done()
	return nil
}

func runWriteState(ctx context.Context, client *control.Client, args []string) error {
	return client.Call(ctx, control.ActionWriteState, nil, nil)
}

func runReload(ctx context.Context, client *control.Client, args []string) error {
	return client.Call(ctx, control.ActionReload, nil, nil)
}

func runGetChargeLimit(ctx context.Context, client *control.Client, args []string) error {
	var response control.ChargeLimitResponse
	if err := client.Call(ctx, control.ActionGetChargeLimit, nil, &response); err != nil {
		return err
	}
	fmt.Printf("%d%%\n", response.Percent)
	return nil
}

func runSetChargeLimit(ctx context.Context, client *control.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one argument: the ceiling in percent")
	}
	percent, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("parsing percent: %w", err)
	}
	return client.Call(ctx, control.ActionSetChargeLimit, map[string]any{"percent": percent}, nil)
}

func runListGovernors(ctx context.Context, client *control.Client, args []string) error {
	var response control.GovernorsResponse
	if err := client.Call(ctx, control.ActionListGovernors, nil, &response); err != nil {
		return err
	}
	for _, governor := range response.Governors {
		fmt.Println(governor)
	}
	return nil
}

func runGetGovernor(ctx context.Context, client *control.Client, args []string) error {
	var response control.GovernorResponse
	if err := client.Call(ctx, control.ActionGetGovernor, nil, &response); err != nil {
		return err
	}
	fmt.Println(response.Governor)
	return nil
}

func runSetGovernor(ctx context.Context, client *control.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one argument: the governor name")
	}
	return client.Call(ctx, control.ActionSetGovernor, map[string]any{"governor": args[0]}, nil)
}

func runGetBoost(ctx context.Context, client *control.Client, args []string) error {
	var response control.BoostResponse
	if err := client.Call(ctx, control.ActionGetBoost, nil, &response); err != nil {
		return err
	}
	if response.Enabled {
		fmt.Println("on")
	} else {
		fmt.Println("off")
	}
	return nil
}

func runSetBoost(ctx context.Context, client *control.Client, args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return fmt.Errorf("expected exactly one argument: on or off")
	}
	enabled := args[0] == "on"
	return client.Call(ctx, control.ActionSetBoost, map[string]any{"enabled": enabled}, nil)
}

func runListProfiles(ctx context.Context, client *control.Client, args []string) error {
	var response control.ProfilesResponse
	if err := client.Call(ctx, control.ActionListProfiles, nil, &response); err != nil {
		return err
	}
	for _, profile := range response.Profiles {
		fmt.Println(profile)
	}
	return nil
}

func runGetProfile(ctx context.Context, client *control.Client, args []string) error {
	var response control.ProfileResponse
	if err := client.Call(ctx, control.ActionGetProfile, nil, &response); err != nil {
		return err
	}
	fmt.Println(response.Profile)
	if response.SuggestedDefault != "" {
		fmt.Printf("suggested default: %s\n", response.SuggestedDefault)
	}
	return nil
}

func runSetProfile(ctx context.Context, client *control.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one argument: the profile name")
	}
	return client.Call(ctx, control.ActionSetProfile, map[string]any{"profile": args[0]}, nil)
}

func parseUint32Arg(args []string, what string) (uint32, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one argument: the %s", what)
	}
	value, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", what, err)
	}
	return uint32(value), nil
}
