// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Package sysfs locates and reads kernel sysfs attributes. All lookups
// go through a Root so tests can point the package at a fabricated
// tree under t.TempDir() instead of /sys.
//
// Device classes that expose one directory per device (hwmon,
// platform-profile) are searched by the device's advertised name: each
// entry's "name" attribute is read and compared, since the numbered
// directory entries (hwmon0, hwmon1, ...) are assigned in probe order
// and are not stable across boots.
package sysfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Well-known locations under the sysfs root.
const (
	hwmonClassDir           = "class/hwmon"
	platformProfileClassDir = "class/platform-profile"

	// CPUDir is the base of per-CPU control files.
	CPUDir = "devices/system/cpu"

	// FirmwareAttributesDir holds vendor firmware attribute groups.
	FirmwareAttributesDir = "class/firmware-attributes"
)

// ErrNotFound reports that no device in a class directory advertised
// the requested name.
var ErrNotFound = errors.New("sysfs: device not found")

// Root is a handle on a sysfs tree. The zero value is not usable; use
// New. Production code uses New("/sys").
type Root struct {
	base string
}

// New returns a Root anchored at base.
func New(base string) Root {
	return Root{base: base}
}

// Path joins elem onto the root.
func (r Root) Path(elem ...string) string {
	return filepath.Join(append([]string{r.base}, elem...)...)
}

// ReadString reads the attribute at the joined path and returns its
// contents with surrounding whitespace trimmed. Sysfs attributes are
// newline-terminated; the trim removes that.
func (r Root) ReadString(elem ...string) (string, error) {
	data, err := os.ReadFile(r.Path(elem...))
	if err != nil {
		return "", fmt.Errorf("reading sysfs attribute: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadUint reads the attribute at the joined path as a base-10
// unsigned integer.
func (r Root) ReadUint(elem ...string) (uint32, error) {
	contents, err := r.ReadString(elem...)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(contents, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing sysfs attribute %s: %w", r.Path(elem...), err)
	}
	return uint32(value), nil
}

// FindHwmon returns the path of the hwmon directory whose name
// attribute matches name. Returns an error wrapping ErrNotFound when
// no device matches.
func (r Root) FindHwmon(name string) (string, error) {
	return r.findByName(hwmonClassDir, name)
}

// FindPlatformProfile returns the path of the platform-profile
// directory whose name attribute matches name.
func (r Root) FindPlatformProfile(name string) (string, error) {
	return r.findByName(platformProfileClassDir, name)
}

// findByName scans classDir for an entry whose "name" attribute equals
// expected. Entries without a readable name attribute are skipped: a
// device mid-removal or with restrictive permissions should not abort
// the search for an unrelated device.
func (r Root) findByName(classDir, expected string) (string, error) {
	base := r.Path(classDir)
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", base, err)
	}

	for _, entry := range entries {
		devicePath := filepath.Join(base, entry.Name())
		data, err := os.ReadFile(filepath.Join(devicePath, "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == expected {
			return devicePath, nil
		}
	}
	return "", fmt.Errorf("%w: no %s device named %q", ErrNotFound, classDir, expected)
}
