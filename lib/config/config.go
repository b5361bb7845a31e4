// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LimitMethod selects the mechanism used to read and write the power
// limit. The set is closed: adding a method means adding a constant
// here and a driver in lib/powerlimit.
type LimitMethod string

const (
	// LimitMethodAmdgpuHwmon drives the limit through the amdgpu
	// hwmon power1_cap attribute.
	LimitMethodAmdgpuHwmon LimitMethod = "amdgpu-hwmon"

	// LimitMethodFirmwareAttribute drives the limit through vendor
	// firmware attributes (ppt_pl1_spl and friends).
	LimitMethodFirmwareAttribute LimitMethod = "firmware-attribute"
)

// Valid reports whether m names a known limit method.
func (m LimitMethod) Valid() bool {
	switch m {
	case LimitMethodAmdgpuHwmon, LimitMethodFirmwareAttribute:
		return true
	}
	return false
}

// Device is the per-device configuration loaded at daemon startup and
// on reload.
type Device struct {
	// PowerLimit configures the power limit arbiter. Nil means this
	// device has no controllable limit; the arbiter reports
	// not-configured to all callers.
	PowerLimit *PowerLimit `yaml:"power_limit"`

	// PerformanceProfile names the platform-profile device used for
	// performance profile selection. Nil disables profile control and
	// makes the firmware-attribute method unconditionally active.
	PerformanceProfile *PerformanceProfile `yaml:"performance_profile"`

	// BatteryChargeLimit configures the battery charge ceiling
	// attribute. Nil means the device has none.
	BatteryChargeLimit *BatteryChargeLimit `yaml:"battery_charge_limit"`
}

// PowerLimit configures the power limit arbiter and its driver.
type PowerLimit struct {
	// Method selects the driver variant.
	Method LimitMethod `yaml:"method"`

	// Range bounds values accepted from callers, in watts. Required
	// for the amdgpu-hwmon method; the firmware-attribute method
	// reads its bounds from the firmware when this is nil.
	Range *Range `yaml:"range"`

	// DownloadModeLimit is the arbitrated override applied while at
	// least one lease is held, in watts. Zero or absent disables
	// leasing entirely: EnterLease returns no token.
	DownloadModeLimit uint32 `yaml:"download_mode_limit"`

	// FirmwareAttribute configures the firmware-attribute method.
	// Required when Method is firmware-attribute.
	FirmwareAttribute *FirmwareAttribute `yaml:"firmware_attribute"`
}

// Range is an inclusive [Min, Max] bound in watts.
type Range struct {
	Min uint32 `yaml:"min"`
	Max uint32 `yaml:"max"`
}

// Contains reports whether value lies within the range.
func (r Range) Contains(value uint32) bool {
	return value >= r.Min && value <= r.Max
}

// FirmwareAttribute configures the firmware-attribute limit method.
type FirmwareAttribute struct {
	// Attribute is the directory name under
	// /sys/class/firmware-attributes.
	Attribute string `yaml:"attribute"`

	// PerformanceProfile, when set, gates the method: it is active
	// only while the platform profile matches this value. Empty means
	// always active.
	PerformanceProfile string `yaml:"performance_profile"`
}

// PerformanceProfile configures platform profile control.
type PerformanceProfile struct {
	// PlatformProfileName is the name attribute of the
	// platform-profile class device.
	PlatformProfileName string `yaml:"platform_profile_name"`

	// SuggestedDefault is the profile recommended to clients.
	SuggestedDefault string `yaml:"suggested_default"`
}

// BatteryChargeLimit configures the battery charge ceiling.
type BatteryChargeLimit struct {
	// HwmonName is the name attribute of the hwmon device exposing
	// the ceiling.
	HwmonName string `yaml:"hwmon_name"`

	// Attribute is the file under that hwmon directory.
	Attribute string `yaml:"attribute"`

	// SuggestedMinimumLimit is the lowest ceiling worth offering in a
	// UI, in percent. Purely advisory.
	SuggestedMinimumLimit int32 `yaml:"suggested_minimum_limit"`
}

// Load reads the device configuration at path. A missing file returns
// the empty configuration: a device with nothing configured runs a
// daemon that answers "not configured" rather than failing to start.
func Load(path string) (*Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Device{}, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var device Device
	if err := yaml.Unmarshal(data, &device); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := device.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &device, nil
}

// Validate checks cross-field requirements that YAML decoding cannot
// express.
func (d *Device) Validate() error {
	limit := d.PowerLimit
	if limit == nil {
		return nil
	}
	if !limit.Method.Valid() {
		return fmt.Errorf("power_limit.method %q is not a known method", limit.Method)
	}
	if limit.Method == LimitMethodFirmwareAttribute {
		if limit.FirmwareAttribute == nil || limit.FirmwareAttribute.Attribute == "" {
			return fmt.Errorf("power_limit.method firmware-attribute requires power_limit.firmware_attribute.attribute")
		}
	}
	if limit.Method == LimitMethodAmdgpuHwmon && limit.Range == nil {
		return fmt.Errorf("power_limit.method amdgpu-hwmon requires power_limit.range")
	}
	if limit.Range != nil && limit.Range.Min > limit.Range.Max {
		return fmt.Errorf("power_limit.range min %d exceeds max %d", limit.Range.Min, limit.Range.Max)
	}
	if limit.DownloadModeLimit != 0 && limit.Range != nil && !limit.Range.Contains(limit.DownloadModeLimit) {
		return fmt.Errorf("power_limit.download_mode_limit %d outside range [%d, %d]",
			limit.DownloadModeLimit, limit.Range.Min, limit.Range.Max)
	}
	return nil
}
