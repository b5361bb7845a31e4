// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package statefile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testState struct {
	Limit  uint32 `cbor:"limit"`
	Leases uint32 `cbor:"leases"`
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "daemon.cbor")

	if err := Save(path, testState{Limit: 15, Leases: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var loaded testState
	found, err := Load(path, &loaded)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatal("Load reported missing file after Save")
	}
	if loaded.Limit != 15 || loaded.Leases != 2 {
		t.Fatalf("loaded = %+v, want {15 2}", loaded)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.cbor")

	loaded := testState{Limit: 10}
	found, err := Load(path, &loaded)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatal("Load reported a file that does not exist")
	}
	if loaded.Limit != 10 {
		t.Fatalf("Load modified v on missing file: %+v", loaded)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.cbor")
	if err := os.WriteFile(path, []byte("not cbor at all"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var loaded testState
	_, err := Load(path, &loaded)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load error = %v, want ErrCorrupt", err)
	}
}

func TestSaveLeavesNoTemporaryFile(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "daemon.cbor")

	if err := Save(path, testState{Limit: 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "daemon.cbor" {
		t.Fatalf("directory contents = %v, want only daemon.cbor", entries)
	}
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.cbor")

	if err := Save(path, testState{Limit: 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := Save(path, testState{Limit: 12}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var loaded testState
	if _, err := Load(path, &loaded); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Limit != 12 {
		t.Fatalf("loaded.Limit = %d, want 12", loaded.Limit)
	}
}
