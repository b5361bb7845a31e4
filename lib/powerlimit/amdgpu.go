// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package powerlimit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wattson-project/wattson/lib/config"
	"github.com/wattson-project/wattson/lib/sysfs"
	"github.com/wattson-project/wattson/lib/syswrite"
)

// amdgpuHwmonName is the name attribute the amdgpu driver gives its
// hwmon directory.
const amdgpuHwmonName = "amdgpu"

// The hwmon power cap attributes, in microwatts. power1_cap is the
// sustained cap every amdgpu exposes; power2_cap exists only on parts
// with a second power rail and is kept in lockstep when present.
const (
	powerCapAttribute       = "power1_cap"
	secondPowerCapAttribute = "power2_cap"
)

const microwattsPerWatt = 1_000_000

// amdgpuHwmonDriver drives the limit through the amdgpu hwmon power
// cap. The valid range comes from device configuration: the hwmon
// power1_cap_min/max attributes routinely advertise a wider span than
// the board can actually sustain.
type amdgpuHwmonDriver struct {
	root       sysfs.Root
	limitRange config.Range
	logger     *slog.Logger
}

func (d *amdgpuHwmonDriver) Limit() (uint32, error) {
	base, err := d.root.FindHwmon(amdgpuHwmonName)
	if err != nil {
		return 0, err
	}
	microwatts, err := sysfs.New(base).ReadUint(powerCapAttribute)
	if err != nil {
		return 0, err
	}
	return microwatts / microwattsPerWatt, nil
}

func (d *amdgpuHwmonDriver) SetLimit(watts uint32) error {
	base, err := d.root.FindHwmon(amdgpuHwmonName)
	if err != nil {
		return err
	}
	data := []byte(strconv.FormatUint(uint64(watts)*microwattsPerWatt, 10))

	if err := syswrite.WriteSynced(filepath.Join(base, powerCapAttribute), data); err != nil {
		return fmt.Errorf("writing %s: %w", powerCapAttribute, err)
	}

	// Mirror into power2_cap when the part has one. Absence is
	// normal; a write failure on a present attribute is not.
	secondCap := filepath.Join(base, secondPowerCapAttribute)
	if _, err := os.Stat(secondCap); err != nil {
		return nil
	}
	if err := syswrite.WriteSynced(secondCap, data); err != nil {
		return fmt.Errorf("writing %s: %w", secondPowerCapAttribute, err)
	}
	return nil
}

func (d *amdgpuHwmonDriver) LimitRange() (config.Range, error) {
	return d.limitRange, nil
}

func (d *amdgpuHwmonDriver) Active() (bool, error) {
	return true, nil
}
