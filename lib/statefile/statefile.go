// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile persists daemon state to disk. State is a small
// CBOR document written atomically (write to temporary file, fsync,
// rename) so readers never see a partial or corrupt file.
//
// A missing state file is not an error: the daemon starts from
// defaults on first boot and after a wiped state directory. A corrupt
// file is reported so the caller can decide to log and fall back to
// defaults rather than refuse to start.
package statefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wattson-project/wattson/lib/codec"
)

// ErrCorrupt wraps decode failures so callers can distinguish a
// damaged state file from an I/O failure with errors.Is.
var ErrCorrupt = errors.New("statefile: corrupt state file")

// Load reads and decodes the state file at path into v. When the file
// does not exist, v is left untouched and Load returns false with a
// nil error — the caller keeps its defaults. Decode failures return
// an error wrapping ErrCorrupt.
func Load(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading state file %s: %w", path, err)
	}

	if err := codec.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return true, nil
}

// Save encodes v as CBOR and writes it atomically to path. The file
// is written to a temporary location in the same directory, fsynced
// for durability, and renamed into place. The parent directory is
// created if missing.
//
// The file is created with mode 0600 (owner read/write only).
func Save(path string, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}

	// Write, sync, close — in that order. If any step fails, remove
	// the temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary state file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming state file into place: %w", err)
	}

	// Sync the parent directory to ensure the rename is durable. This
	// matters when the machine loses power between rename and the OS
	// flushing directory metadata.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}
