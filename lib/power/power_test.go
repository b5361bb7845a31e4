// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/wattson-project/wattson/lib/config"
	"github.com/wattson-project/wattson/lib/sysfs"
	"github.com/wattson-project/wattson/lib/syswrite"
	"github.com/wattson-project/wattson/lib/testutil"
)

func writeAttribute(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readAttribute(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func cpufreqTree(t *testing.T, policies ...string) (sysfs.Root, string) {
	t.Helper()
	base := t.TempDir()
	cpufreq := filepath.Join(base, "devices/system/cpu/cpufreq")
	for _, policy := range policies {
		dir := filepath.Join(cpufreq, policy)
		writeAttribute(t, filepath.Join(dir, "scaling_governor"), "schedutil\n")
		writeAttribute(t, filepath.Join(dir, "scaling_available_governors"),
			"conservative ondemand performance powersave schedutil\n")
	}
	return sysfs.New(base), cpufreq
}

func TestAvailableGovernors(t *testing.T) {
	root, _ := cpufreqTree(t, "policy0")
	cpu := NewCPU(root)

	governors, err := cpu.AvailableGovernors()
	if err != nil {
		t.Fatalf("AvailableGovernors: %v", err)
	}
	want := []string{"conservative", "ondemand", "performance", "powersave", "schedutil"}
	if !reflect.DeepEqual(governors, want) {
		t.Fatalf("AvailableGovernors = %v, want %v", governors, want)
	}
}

func TestGovernor(t *testing.T) {
	root, _ := cpufreqTree(t, "policy0")
	cpu := NewCPU(root)

	governor, err := cpu.Governor()
	if err != nil {
		t.Fatalf("Governor: %v", err)
	}
	if governor != "schedutil" {
		t.Fatalf("Governor = %q, want \"schedutil\"", governor)
	}
}

func TestSetGovernorWritesAllPolicies(t *testing.T) {
	root, cpufreq := cpufreqTree(t, "policy0", "policy1", "policy4")
	// A non-policy entry that must be skipped.
	writeAttribute(t, filepath.Join(cpufreq, "boost"), "1\n")
	cpu := NewCPU(root)

	if err := cpu.SetGovernor("performance"); err != nil {
		t.Fatalf("SetGovernor: %v", err)
	}
	for _, policy := range []string{"policy0", "policy1", "policy4"} {
		path := filepath.Join(cpufreq, policy, "scaling_governor")
		if got := readAttribute(t, path); got != "performance" {
			t.Fatalf("%s = %q, want \"performance\"", policy, got)
		}
	}
}

func TestSetGovernorNoPolicies(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "devices/system/cpu/cpufreq"), 0o755); err != nil {
		t.Fatal(err)
	}
	cpu := NewCPU(sysfs.New(base))

	if err := cpu.SetGovernor("performance"); err == nil {
		t.Fatal("SetGovernor succeeded with no policy directories")
	}
}

func TestBoostCpufreq(t *testing.T) {
	base := t.TempDir()
	boostPath := filepath.Join(base, "devices/system/cpu/cpufreq/boost")
	writeAttribute(t, boostPath, "1\n")
	cpu := NewCPU(sysfs.New(base))

	enabled, err := cpu.BoostEnabled()
	if err != nil {
		t.Fatalf("BoostEnabled: %v", err)
	}
	if !enabled {
		t.Fatal("BoostEnabled = false, want true")
	}

	if err := cpu.SetBoost(false); err != nil {
		t.Fatalf("SetBoost: %v", err)
	}
	if got := readAttribute(t, boostPath); got != "0" {
		t.Fatalf("boost = %q, want \"0\"", got)
	}
}

func TestBoostIntelPstateInverted(t *testing.T) {
	base := t.TempDir()
	noTurboPath := filepath.Join(base, "devices/system/cpu/intel_pstate/no_turbo")
	writeAttribute(t, noTurboPath, "0\n")
	cpu := NewCPU(sysfs.New(base))

	enabled, err := cpu.BoostEnabled()
	if err != nil {
		t.Fatalf("BoostEnabled: %v", err)
	}
	if !enabled {
		t.Fatal("BoostEnabled = false for no_turbo=0, want true")
	}

	if err := cpu.SetBoost(false); err != nil {
		t.Fatalf("SetBoost: %v", err)
	}
	if got := readAttribute(t, noTurboPath); got != "1" {
		t.Fatalf("no_turbo = %q after disabling boost, want \"1\"", got)
	}
}

func TestBoostPrefersCpufreq(t *testing.T) {
	base := t.TempDir()
	boostPath := filepath.Join(base, "devices/system/cpu/cpufreq/boost")
	writeAttribute(t, boostPath, "0\n")
	writeAttribute(t, filepath.Join(base, "devices/system/cpu/intel_pstate/no_turbo"), "0\n")
	cpu := NewCPU(sysfs.New(base))

	// no_turbo=0 would mean enabled; cpufreq boost=0 means disabled.
	// cpufreq wins.
	enabled, err := cpu.BoostEnabled()
	if err != nil {
		t.Fatalf("BoostEnabled: %v", err)
	}
	if enabled {
		t.Fatal("BoostEnabled = true, want cpufreq's false")
	}
}

func TestBoostMissing(t *testing.T) {
	cpu := NewCPU(sysfs.New(t.TempDir()))
	if _, err := cpu.BoostEnabled(); err == nil {
		t.Fatal("BoostEnabled succeeded with no boost interface")
	}
}

func batteryTree(t *testing.T) (sysfs.Root, string) {
	t.Helper()
	base := t.TempDir()
	hwmonDir := filepath.Join(base, "class/hwmon/hwmon2")
	writeAttribute(t, filepath.Join(hwmonDir, "name"), "steamdeck_hwmon\n")
	writeAttribute(t, filepath.Join(hwmonDir, "max_battery_charge_level"), "90\n")
	return sysfs.New(base), hwmonDir
}

func batteryConfig() *config.BatteryChargeLimit {
	return &config.BatteryChargeLimit{
		HwmonName: "steamdeck_hwmon",
		Attribute: "max_battery_charge_level",
	}
}

func startWriter(t *testing.T, queue *syswrite.Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go syswrite.NewWriter(queue, slog.Default()).Run(ctx)
}

func TestBatteryChargeLimit(t *testing.T) {
	root, _ := batteryTree(t)
	battery := NewBattery(root, batteryConfig(), syswrite.NewQueue())

	limit, err := battery.ChargeLimit()
	if err != nil {
		t.Fatalf("ChargeLimit: %v", err)
	}
	if limit != 90 {
		t.Fatalf("ChargeLimit = %d, want 90", limit)
	}
}

func TestBatterySetChargeLimitThroughQueue(t *testing.T) {
	root, hwmonDir := batteryTree(t)
	queue := syswrite.NewQueue()
	startWriter(t, queue)
	battery := NewBattery(root, batteryConfig(), queue)

	done, err := battery.SetChargeLimit(80)
	if err != nil {
		t.Fatalf("SetChargeLimit: %v", err)
	}
	written := testutil.RequireReceive(t, done, 5*time.Second, "waiting for write outcome")
	if written.Superseded || written.Err != nil {
		t.Fatalf("write outcome = %+v", written)
	}
	path := filepath.Join(hwmonDir, "max_battery_charge_level")
	if got := readAttribute(t, path); got != "80" {
		t.Fatalf("attribute = %q, want \"80\"", got)
	}
}

func TestBatterySetChargeLimitValidates(t *testing.T) {
	root, _ := batteryTree(t)
	battery := NewBattery(root, batteryConfig(), syswrite.NewQueue())

	for _, percent := range []int32{-1, 101} {
		if _, err := battery.SetChargeLimit(percent); err == nil {
			t.Fatalf("SetChargeLimit(%d) succeeded", percent)
		}
	}
}

func TestBatteryNotConfigured(t *testing.T) {
	battery := NewBattery(sysfs.New(t.TempDir()), nil, syswrite.NewQueue())
	if _, err := battery.ChargeLimit(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ChargeLimit = %v, want ErrNotConfigured", err)
	}
	if _, err := battery.SetChargeLimit(80); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("SetChargeLimit = %v, want ErrNotConfigured", err)
	}
}

func profileTree(t *testing.T) (sysfs.Root, string) {
	t.Helper()
	base := t.TempDir()
	deviceDir := filepath.Join(base, "class/platform-profile/platform-profile0")
	writeAttribute(t, filepath.Join(deviceDir, "name"), "acer-wmi\n")
	writeAttribute(t, filepath.Join(deviceDir, "choices"), "quiet balanced performance\n")
	writeAttribute(t, filepath.Join(deviceDir, "profile"), "balanced\n")
	return sysfs.New(base), deviceDir
}

func profileConfig() *config.PerformanceProfile {
	return &config.PerformanceProfile{
		PlatformProfileName: "acer-wmi",
		SuggestedDefault:    "balanced",
	}
}

func TestProfileChoicesAndCurrent(t *testing.T) {
	root, _ := profileTree(t)
	profile := NewProfile(root, profileConfig())

	choices, err := profile.Choices()
	if err != nil {
		t.Fatalf("Choices: %v", err)
	}
	if !reflect.DeepEqual(choices, []string{"quiet", "balanced", "performance"}) {
		t.Fatalf("Choices = %v", choices)
	}

	current, err := profile.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current != "balanced" {
		t.Fatalf("Current = %q, want \"balanced\"", current)
	}
	if got := profile.SuggestedDefault(); got != "balanced" {
		t.Fatalf("SuggestedDefault = %q, want \"balanced\"", got)
	}
}

func TestProfileSet(t *testing.T) {
	root, deviceDir := profileTree(t)
	profile := NewProfile(root, profileConfig())

	if err := profile.Set("performance"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := readAttribute(t, filepath.Join(deviceDir, "profile")); got != "performance" {
		t.Fatalf("profile = %q, want \"performance\"", got)
	}

	if err := profile.Set("overclocked"); err == nil {
		t.Fatal("Set accepted a profile outside choices")
	}
}

func TestProfileNotConfigured(t *testing.T) {
	profile := NewProfile(sysfs.New(t.TempDir()), nil)
	if _, err := profile.Choices(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Choices = %v, want ErrNotConfigured", err)
	}
}
