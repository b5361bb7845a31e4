// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/wattson-project/wattson/lib/config"
	"github.com/wattson-project/wattson/lib/sysfs"
	"github.com/wattson-project/wattson/lib/syswrite"
)

// Profile controls the ACPI platform profile of the device named by
// configuration.
type Profile struct {
	root sysfs.Root
	cfg  *config.PerformanceProfile
}

// NewProfile returns a Profile control. cfg may be nil, in which case
// every operation reports ErrNotConfigured.
func NewProfile(root sysfs.Root, cfg *config.PerformanceProfile) Profile {
	return Profile{root: root, cfg: cfg}
}

func (p Profile) deviceDir() (string, error) {
	if p.cfg == nil || p.cfg.PlatformProfileName == "" {
		return "", ErrNotConfigured
	}
	return p.root.FindPlatformProfile(p.cfg.PlatformProfileName)
}

// Choices lists the profiles the firmware accepts.
func (p Profile) Choices() ([]string, error) {
	base, err := p.deviceDir()
	if err != nil {
		return nil, err
	}
	contents, err := sysfs.New(base).ReadString("choices")
	if err != nil {
		return nil, err
	}
	return strings.Fields(contents), nil
}

// Current returns the selected profile.
func (p Profile) Current() (string, error) {
	base, err := p.deviceDir()
	if err != nil {
		return "", err
	}
	return sysfs.New(base).ReadString("profile")
}

// Set selects profile. The name is checked against Choices first;
// the kernel rejects unknown names too, but with an EINVAL that tells
// the caller nothing about which names would have worked.
func (p Profile) Set(profile string) error {
	choices, err := p.Choices()
	if err != nil {
		return err
	}
	if !slices.Contains(choices, profile) {
		return fmt.Errorf("unknown platform profile %q, choices are %v", profile, choices)
	}
	base, err := p.deviceDir()
	if err != nil {
		return err
	}
	return syswrite.WriteSynced(filepath.Join(base, "profile"), []byte(profile))
}

// SuggestedDefault returns the profile recommended by device
// configuration, or empty when none is.
func (p Profile) SuggestedDefault() string {
	if p.cfg == nil {
		return ""
	}
	return p.cfg.SuggestedDefault
}
