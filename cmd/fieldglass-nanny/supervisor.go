// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fieldglass/fieldglass/lib/clock"
	"github.com/fieldglass/fieldglass/lib/nanny"
)

// supervisor drives lib/nanny's Tick decisions against a real child
// process, translating each recommended Action into an os/exec
// operation and persisting the result to the shared state file.
type supervisor struct {
	policy    nanny.Policy
	statePath string
	binary    string
	argv      []string
	clk       clock.Clock

	eventLogger *nanny.EventLogger

	mu                sync.Mutex
	cmd               *exec.Cmd
	dead              bool
	observedHeartbeat int64
}

// run spawns the child and drives the tick loop until ctx is done.
func (s *supervisor) run(ctx context.Context) error {
	if state, err := nanny.ReadState(s.statePath); err == nil {
		s.observedHeartbeat = state.Heartbeat
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("nanny: reading initial state: %w", err)
	}

	if err := s.spawn("running", ""); err != nil {
		return fmt.Errorf("nanny: spawning child: %w", err)
	}

	for {
		delay := s.tick()
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-s.clk.After(delay):
		}
	}
}

// tick reads the latest on-disk heartbeat, evaluates one decision via
// [nanny.Tick], and acts on it.
func (s *supervisor) tick() time.Duration {
	if state, err := nanny.ReadState(s.statePath); err == nil && state.Heartbeat > s.observedHeartbeat {
		s.observedHeartbeat = state.Heartbeat
	}

	alive, pid := s.childStatus()
	var rss uint64
	if alive {
		rss, _ = readChildRSS(pid)
	}

	result := nanny.Tick(s.policy, nanny.TickInput{
		Now:           s.clk.Now(),
		Heartbeat:     s.observedHeartbeat,
		ChildAlive:    alive,
		ChildRSSBytes: rss,
	})

	switch result.Action {
	case nanny.ActionKillUnresponsive:
		s.eventLogger.Logf("killing unresponsive child (pid %d)", pid)
		s.kill("No heartbeat received.", "killed_unresponsive")
	case nanny.ActionKillMemoryLimit:
		s.eventLogger.Logf("killing child (pid %d) for exceeding memory limit", pid)
		s.kill("Child process exceeded memory limit.", "killed_memory_limit")
	case nanny.ActionRespawn:
		s.observedHeartbeat = result.NewHeartbeat
		if err := s.spawn("running", ""); err != nil {
			s.eventLogger.Logf("failed to respawn child: %v", err)
		}
	}
	return result.NextDelay
}

// spawn starts a fresh child and persists the supervisor's new view
// of it. message, if non-empty, is a one-shot note recorded alongside
// the spawn (unused on the ordinary startup path).
func (s *supervisor) spawn(status, message string) error {
	cmd := exec.Command(s.binary, s.argv...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cmd = cmd
	s.dead = false
	s.mu.Unlock()

	go func() {
		waitErr := cmd.Wait()
		s.mu.Lock()
		s.dead = true
		s.mu.Unlock()
		if waitErr != nil {
			slog.Warn("nanny: child exited", "error", waitErr)
		}
	}()

	return nanny.WriteState(s.statePath, nanny.State{
		Heartbeat:    s.observedHeartbeat,
		NannyMessage: message,
		NannyStatus:  status,
		ChildBinary:  s.binary,
		ChildArgv:    s.argv,
	})
}

// kill signals the child with SIGTERM, falling back to SIGKILL after
// the configured grace period, and records message/status in the
// state file for the client to report on its next session.
func (s *supervisor) kill(message, status string) {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	cmd.Process.Signal(syscall.SIGTERM)
	deadline := s.clk.After(s.policy.UnresponsiveGracePeriod)
	for {
		if alive, _ := s.childStatus(); !alive {
			break
		}
		select {
		case <-deadline:
			cmd.Process.Signal(syscall.SIGKILL)
		case <-s.clk.After(100 * time.Millisecond):
			continue
		}
		break
	}

	if err := nanny.WriteState(s.statePath, nanny.State{
		Heartbeat:    s.observedHeartbeat,
		NannyMessage: message,
		NannyStatus:  status,
		ChildBinary:  s.binary,
		ChildArgv:    s.argv,
	}); err != nil {
		slog.Warn("nanny: writing kill state failed", "error", err)
	}
}

// shutdown terminates the child on supervisor exit, without touching
// the state file -- an operator-initiated stop is not itself a
// nanny-level event worth reporting.
func (s *supervisor) shutdown() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGTERM)
	}
}

// childStatus reports whether the current child is still running and
// its pid (zero if none has ever been spawned).
func (s *supervisor) childStatus() (alive bool, pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return false, 0
	}
	return !s.dead, s.cmd.Process.Pid
}

// readChildRSS reads a process's resident set size from
// /proc/<pid>/status, the same source lib/telemetry's rusage reading
// covers for this process's own self-measurement -- here read out of
// process since the supervisor is not the one consuming the memory.
func readChildRSS(pid int) (uint64, bool) {
	file, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, false
	}
	defer file.Close()
	return parseVmRSS(file)
}

// parseVmRSS scans a /proc/<pid>/status-shaped stream for the VmRSS
// line and converts its kilobyte value to bytes.
func parseVmRSS(r io.Reader) (uint64, bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}
