// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
power_limit:
  method: amdgpu-hwmon
  range:
    min: 3
    max: 15
  download_mode_limit: 6
performance_profile:
  platform_profile_name: power-driver
  suggested_default: custom
battery_charge_limit:
  hwmon_name: steamdeck_hwmon
  attribute: max_battery_charge_level
  suggested_minimum_limit: 10
`)

	device, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	limit := device.PowerLimit
	if limit == nil {
		t.Fatal("PowerLimit is nil")
	}
	if limit.Method != LimitMethodAmdgpuHwmon {
		t.Fatalf("Method = %q", limit.Method)
	}
	if limit.Range == nil || limit.Range.Min != 3 || limit.Range.Max != 15 {
		t.Fatalf("Range = %+v", limit.Range)
	}
	if limit.DownloadModeLimit != 6 {
		t.Fatalf("DownloadModeLimit = %d", limit.DownloadModeLimit)
	}
	if device.PerformanceProfile.PlatformProfileName != "power-driver" {
		t.Fatalf("PlatformProfileName = %q", device.PerformanceProfile.PlatformProfileName)
	}
	if device.BatteryChargeLimit.Attribute != "max_battery_charge_level" {
		t.Fatalf("BatteryChargeLimit = %+v", device.BatteryChargeLimit)
	}
}

func TestLoadMissingFileIsEmptyConfig(t *testing.T) {
	device, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if device.PowerLimit != nil || device.BatteryChargeLimit != nil {
		t.Fatalf("missing file produced non-empty config: %+v", device)
	}
}

func TestLoadRejectsUnknownMethod(t *testing.T) {
	path := writeConfig(t, `
power_limit:
  method: telepathy
  range: {min: 3, max: 15}
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted an unknown limit method")
	}
}

func TestLoadRejectsFirmwareAttributeWithoutAttribute(t *testing.T) {
	path := writeConfig(t, `
power_limit:
  method: firmware-attribute
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted firmware-attribute without an attribute name")
	}
}

func TestLoadRejectsInvertedRange(t *testing.T) {
	path := writeConfig(t, `
power_limit:
  method: amdgpu-hwmon
  range: {min: 15, max: 3}
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted min > max")
	}
}

func TestLoadRejectsOverrideOutsideRange(t *testing.T) {
	path := writeConfig(t, `
power_limit:
  method: amdgpu-hwmon
  range: {min: 3, max: 15}
  download_mode_limit: 20
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted a download mode limit outside the range")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "power_limit: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed YAML")
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{Min: 3, Max: 15}
	for value, want := range map[uint32]bool{2: false, 3: true, 9: true, 15: true, 16: false} {
		if got := r.Contains(value); got != want {
			t.Errorf("Contains(%d) = %v, want %v", value, got, want)
		}
	}
}
