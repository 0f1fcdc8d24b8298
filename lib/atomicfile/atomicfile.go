// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile writes small state files -- config writeback,
// supervisor heartbeats -- so that a reader never observes a partial
// or corrupt write, even across a crash between write and rename.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write writes data to path by creating a temporary file in the same
// directory, flushing it to disk, and renaming it into place, then
// fsyncing the parent directory so the rename itself survives a
// power loss. The parent directory must already exist.
func Write(path string, data []byte, perm os.FileMode) error {
	// A unique temporary name per call keeps concurrent writers of the
	// same path (the agent and the supervisor both write the nanny
	// state file) from writing into one shared temporary file.
	file, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("atomicfile: creating temporary file: %w", err)
	}
	temporaryPath := file.Name()
	if err := file.Chmod(perm); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("atomicfile: setting temporary file mode: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("atomicfile: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("atomicfile: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("atomicfile: closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("atomicfile: renaming file into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}
