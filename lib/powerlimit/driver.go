// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package powerlimit

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wattson-project/wattson/lib/config"
	"github.com/wattson-project/wattson/lib/sysfs"
)

var (
	// ErrNotConfigured reports that the device configuration has no
	// power limit section. Callers surface this as "feature absent",
	// not as a failure.
	ErrNotConfigured = errors.New("powerlimit: no power limit configured")

	// ErrOutOfRange reports a requested limit outside the valid
	// range.
	ErrOutOfRange = errors.New("powerlimit: value outside valid range")

	// ErrInactive reports that the configured limit method is not
	// currently usable, e.g. the platform profile gating the
	// firmware-attribute method is not selected.
	ErrInactive = errors.New("powerlimit: limit method not active")
)

// Driver reads and writes the power limit through one concrete
// mechanism. All values are in watts; unit conversion to whatever the
// underlying register uses happens inside the driver.
//
// Drivers do not validate requested values against the range — the
// Arbiter does that once, before the write reaches any driver.
type Driver interface {
	// Limit returns the current limit.
	Limit() (uint32, error)

	// SetLimit writes a new limit.
	SetLimit(watts uint32) error

	// LimitRange returns the inclusive valid range.
	LimitRange() (config.Range, error)

	// Active reports whether the method is currently usable. Limit
	// and SetLimit fail with ErrInactive while Active is false.
	Active() (bool, error)
}

// NewDriver selects and constructs the driver variant named by the
// device configuration. Returns ErrNotConfigured when the device has
// no power limit section.
func NewDriver(device *config.Device, root sysfs.Root, logger *slog.Logger) (Driver, error) {
	limit := device.PowerLimit
	if limit == nil {
		return nil, ErrNotConfigured
	}

	switch limit.Method {
	case config.LimitMethodAmdgpuHwmon:
		return &amdgpuHwmonDriver{
			root:       root,
			limitRange: *limit.Range,
			logger:     logger.With("component", "powerlimit", "driver", "amdgpu-hwmon"),
		}, nil
	case config.LimitMethodFirmwareAttribute:
		driver := &firmwareAttributeDriver{
			root:      root,
			attribute: limit.FirmwareAttribute.Attribute,
			profile:   limit.FirmwareAttribute.PerformanceProfile,
			logger:    logger.With("component", "powerlimit", "driver", "firmware-attribute"),
		}
		if device.PerformanceProfile != nil {
			driver.profileDevice = device.PerformanceProfile.PlatformProfileName
		}
		return driver, nil
	}
	return nil, fmt.Errorf("powerlimit: unknown limit method %q", limit.Method)
}
