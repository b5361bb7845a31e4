// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/wattson-project/wattson/lib/config"
	"github.com/wattson-project/wattson/lib/sysfs"
	"github.com/wattson-project/wattson/lib/syswrite"
)

// ErrNotConfigured reports that the device configuration does not
// describe the requested control.
var ErrNotConfigured = errors.New("power: control not configured")

// Battery controls the battery charge ceiling through a hwmon
// attribute named by device configuration. Writes go through the
// shared write queue.
type Battery struct {
	root  sysfs.Root
	cfg   *config.BatteryChargeLimit
	queue *syswrite.Queue
}

// NewBattery returns a Battery control. cfg may be nil, in which case
// every operation reports ErrNotConfigured.
func NewBattery(root sysfs.Root, cfg *config.BatteryChargeLimit, queue *syswrite.Queue) Battery {
	return Battery{root: root, cfg: cfg, queue: queue}
}

// hwmonDir resolves the hwmon directory holding the ceiling attribute.
func (b Battery) hwmonDir() (string, error) {
	if b.cfg == nil {
		return "", ErrNotConfigured
	}
	return b.root.FindHwmon(b.cfg.HwmonName)
}

// ChargeLimit returns the current ceiling in percent.
func (b Battery) ChargeLimit() (int32, error) {
	base, err := b.hwmonDir()
	if err != nil {
		return 0, err
	}
	value, err := sysfs.New(base).ReadUint(b.cfg.Attribute)
	if err != nil {
		return 0, err
	}
	return int32(value), nil
}

// SetChargeLimit enqueues a new ceiling and returns the channel that
// will deliver the write's outcome. percent must be within 0 to 100;
// the kernel would accept some out-of-range writes and clamp them
// silently, so the check happens here.
func (b Battery) SetChargeLimit(percent int32) (<-chan syswrite.Written, error) {
	if percent < 0 || percent > 100 {
		return nil, fmt.Errorf("charge limit %d%% outside 0-100", percent)
	}
	base, err := b.hwmonDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(base, b.cfg.Attribute)
	return b.queue.Send(path, []byte(strconv.FormatInt(int64(percent), 10))), nil
}
