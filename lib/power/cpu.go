// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"fmt"
	"os"
	"strings"

	"github.com/wattson-project/wattson/lib/sysfs"
	"github.com/wattson-project/wattson/lib/syswrite"
)

const (
	cpufreqDir = "cpufreq"

	// policy0 always exists when cpufreq does, and governor state is
	// uniform across policies, so reads go there. Writes fan out to
	// every policy directory.
	firstPolicy  = "policy0"
	policyPrefix = "policy"

	governorAttribute           = "scaling_governor"
	availableGovernorsAttribute = "scaling_available_governors"

	// cpufreq's boost file is 1=enabled. intel_pstate predates it and
	// exposes no_turbo instead, with the sense inverted.
	cpufreqBoostAttribute = "boost"
	intelPstateDir        = "intel_pstate"
	intelNoTurboAttribute = "no_turbo"
)

// CPU controls frequency scaling for all cores.
type CPU struct {
	root sysfs.Root
}

// NewCPU returns a CPU control over root.
func NewCPU(root sysfs.Root) CPU {
	return CPU{root: root}
}

// AvailableGovernors lists the governors the kernel offers.
func (c CPU) AvailableGovernors() ([]string, error) {
	contents, err := c.root.ReadString(sysfs.CPUDir, cpufreqDir, firstPolicy, availableGovernorsAttribute)
	if err != nil {
		return nil, err
	}
	return strings.Fields(contents), nil
}

// Governor returns the currently selected governor.
func (c CPU) Governor() (string, error) {
	return c.root.ReadString(sysfs.CPUDir, cpufreqDir, firstPolicy, governorAttribute)
}

// SetGovernor selects governor on every policy. Failing to write any
// single policy is an error, as is finding no policy directories at
// all.
func (c CPU) SetGovernor(governor string) error {
	base := c.root.Path(sysfs.CPUDir, cpufreqDir)
	entries, err := os.ReadDir(base)
	if err != nil {
		return fmt.Errorf("reading %s: %w", base, err)
	}

	wrote := false
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), policyPrefix) {
			continue
		}
		target := c.root.Path(sysfs.CPUDir, cpufreqDir, entry.Name(), governorAttribute)
		if err := syswrite.WriteSynced(target, []byte(governor)); err != nil {
			return fmt.Errorf("setting governor on %s: %w", entry.Name(), err)
		}
		wrote = true
	}
	if !wrote {
		return fmt.Errorf("no cpufreq policy directories under %s", base)
	}
	return nil
}

// BoostEnabled reports whether CPU boost is on, through whichever
// interface the kernel exposes. cpufreq is checked first.
func (c CPU) BoostEnabled() (bool, error) {
	path, inverted, err := c.findBoost()
	if err != nil {
		return false, err
	}
	contents, err := c.root.ReadString(path...)
	if err != nil {
		return false, err
	}
	switch contents {
	case "0":
		return inverted, nil
	case "1":
		return !inverted, nil
	}
	return false, fmt.Errorf("unexpected boost state %q", contents)
}

// SetBoost turns CPU boost on or off.
func (c CPU) SetBoost(enabled bool) error {
	path, inverted, err := c.findBoost()
	if err != nil {
		return err
	}
	value := "0"
	if enabled != inverted {
		value = "1"
	}
	return syswrite.WriteSynced(c.root.Path(path...), []byte(value))
}

// findBoost locates the boost control file. inverted is true for
// intel_pstate's no_turbo, where 1 means boost off.
func (c CPU) findBoost() (path []string, inverted bool, err error) {
	cpufreqBoost := []string{sysfs.CPUDir, cpufreqDir, cpufreqBoostAttribute}
	if _, err := os.Stat(c.root.Path(cpufreqBoost...)); err == nil {
		return cpufreqBoost, false, nil
	}
	noTurbo := []string{sysfs.CPUDir, intelPstateDir, intelNoTurboAttribute}
	if _, err := os.Stat(c.root.Path(noTurbo...)); err == nil {
		return noTurbo, true, nil
	}
	return nil, false, fmt.Errorf("no CPU boost control found under %s", c.root.Path(sysfs.CPUDir))
}
