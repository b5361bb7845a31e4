// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package powerlimit

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/wattson-project/wattson/lib/config"
	"github.com/wattson-project/wattson/lib/sysfs"
	"github.com/wattson-project/wattson/lib/syswrite"
)

// The firmware attribute names for the three AMD power limits:
// sustained (SPL), slow boost (SPPT), fast boost (FPPT). Wattson
// exposes one knob and writes the same value to all three, which is
// what the vendor tools do for a flat cap.
const (
	splAttribute  = "ppt_pl1_spl"
	spptAttribute = "ppt_pl2_sppt"
	fpptAttribute = "ppt_pl3_fppt"
)

// firmwareAttributeDriver drives the limit through the kernel
// firmware-attributes class. Some vendors only honor these attributes
// while a particular platform profile is selected; when configured,
// that profile gates Active and every read and write.
type firmwareAttributeDriver struct {
	root sysfs.Root

	// attribute is the directory name under class/firmware-attributes.
	attribute string

	// profile is the platform profile required for the attributes to
	// take effect. Empty means no gating.
	profile string

	// profileDevice is the name of the platform-profile class device
	// to consult. Empty disables gating even when profile is set,
	// since there is nothing to read the current profile from.
	profileDevice string

	logger *slog.Logger
}

// attributesDir returns the directory holding the attribute group.
func (d *firmwareAttributeDriver) attributesDir() string {
	return d.root.Path(sysfs.FirmwareAttributesDir, d.attribute, "attributes")
}

func (d *firmwareAttributeDriver) Limit() (uint32, error) {
	if err := d.requireActive(); err != nil {
		return 0, err
	}
	return sysfs.New(d.attributesDir()).ReadUint(splAttribute, "current_value")
}

func (d *firmwareAttributeDriver) SetLimit(watts uint32) error {
	if err := d.requireActive(); err != nil {
		return err
	}
	data := []byte(fmt.Sprintf("%d", watts))
	for _, attribute := range []string{splAttribute, spptAttribute, fpptAttribute} {
		path := filepath.Join(d.attributesDir(), attribute, "current_value")
		if err := syswrite.WriteSynced(path, data); err != nil {
			return fmt.Errorf("writing %s: %w", attribute, err)
		}
	}
	return nil
}

func (d *firmwareAttributeDriver) LimitRange() (config.Range, error) {
	attributes := sysfs.New(d.attributesDir())
	lower, err := attributes.ReadUint(splAttribute, "min_value")
	if err != nil {
		return config.Range{}, err
	}
	upper, err := attributes.ReadUint(splAttribute, "max_value")
	if err != nil {
		return config.Range{}, err
	}
	return config.Range{Min: lower, Max: upper}, nil
}

func (d *firmwareAttributeDriver) Active() (bool, error) {
	if d.profile == "" || d.profileDevice == "" {
		return true, nil
	}
	base, err := d.root.FindPlatformProfile(d.profileDevice)
	if err != nil {
		return false, err
	}
	current, err := sysfs.New(base).ReadString("profile")
	if err != nil {
		return false, err
	}
	return current == d.profile, nil
}

// requireActive converts an inactive method into ErrInactive for read
// and write paths.
func (d *firmwareAttributeDriver) requireActive() error {
	active, err := d.Active()
	if err != nil {
		return err
	}
	if !active {
		return ErrInactive
	}
	return nil
}
