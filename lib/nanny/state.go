// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package nanny

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fieldglass/fieldglass/lib/atomicfile"
)

// State is the supervisor's persisted view of the child it watches.
type State struct {
	// Heartbeat is the microsecond Unix timestamp of the last
	// liveness signal observed from the child.
	Heartbeat int64 `json:"heartbeat"`

	// NannyMessage is the most recent human-readable note the
	// supervisor recorded about the child (e.g. why it was killed).
	NannyMessage string `json:"nanny_message"`

	// NannyStatus is a short machine-checkable status word, e.g.
	// "running", "killed_unresponsive", "killed_memory_limit".
	NannyStatus string `json:"nanny_status"`

	// ChildBinary and ChildArgv record what the supervisor last
	// started, so a restarted supervisor can resume watching the
	// same child configuration without re-reading its own config.
	ChildBinary string   `json:"child_binary"`
	ChildArgv   []string `json:"child_argv"`
}

// WriteState persists state to path atomically.
func WriteState(path string, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("nanny: encoding state: %w", err)
	}
	data = append(data, '\n')
	if err := atomicfile.Write(path, data, 0600); err != nil {
		return fmt.Errorf("nanny: writing state file: %w", err)
	}
	return nil
}

// ReadState reads a previously written state file. When the file
// does not exist, the returned error wraps os.ErrNotExist.
func ReadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("nanny: parsing state file %s: %w", path, err)
	}
	return state, nil
}

// UpdateHeartbeat is the client side of the heartbeat contract: it
// read-modify-writes the shared state file, setting Heartbeat to now
// (microseconds) while leaving every other field as the supervisor
// last left it. A missing file (supervisor has not started the child
// yet) is not an error -- the first write creates it with a zeroed
// ChildBinary, which the supervisor's own next write fills in.
func UpdateHeartbeat(path string, nowMicros int64) error {
	state, err := ReadState(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("nanny: reading state file to update heartbeat: %w", err)
	}
	state.Heartbeat = nowMicros
	return WriteState(path, state)
}
