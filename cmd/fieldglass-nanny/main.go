// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// fieldglass-nanny is the supervisor: it launches fieldglass-agent,
// watches the heartbeat the agent writes to a shared state file, and
// kills and respawns the agent according to lib/nanny's policy.
//
// Usage: fieldglass-nanny <agent-binary> <agent-config-file> [state-file]
//
// state-file defaults to <agent-config-file's directory>/nanny-state.json,
// the same path fieldglass-agent writes its heartbeat to by default.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fieldglass/fieldglass/lib/clock"
	"github.com/fieldglass/fieldglass/lib/nanny"
	"github.com/fieldglass/fieldglass/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		resurrectionPeriod      time.Duration
		unresponsiveKillPeriod  time.Duration
		unresponsiveGracePeriod time.Duration
		eventLogSuppression     time.Duration
		memoryLimitBytes        uint64
	)
	flag.DurationVar(&resurrectionPeriod, "resurrection-period", 10*time.Second, "cooldown after the child dies before it is respawned")
	flag.DurationVar(&unresponsiveKillPeriod, "unresponsive-kill-period", time.Minute, "max heartbeat silence before the child is killed")
	flag.DurationVar(&unresponsiveGracePeriod, "unresponsive-grace-period", 30*time.Second, "wait after SIGTERM before SIGKILL, and before the next check after a kill (not applied as boot-time slack)")
	flag.DurationVar(&eventLogSuppression, "event-log-suppression", 30*time.Second, "minimum interval between duplicate log lines")
	flag.Uint64Var(&memoryLimitBytes, "memory-limit-bytes", 0, "kill the child if its RSS exceeds this many bytes (0 disables the check)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: fieldglass-nanny [flags] <agent-binary> <agent-config-file> [state-file]")
	}
	agentBinary := args[0]
	agentConfig := args[1]
	statePath := filepath.Join(filepath.Dir(agentConfig), "nanny-state.json")
	if len(args) == 3 {
		statePath = args[2]
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	policy := nanny.Policy{
		ResurrectionPeriod:         resurrectionPeriod,
		UnresponsiveKillPeriod:     unresponsiveKillPeriod,
		UnresponsiveGracePeriod:    unresponsiveGracePeriod,
		EventLogMessageSuppression: eventLogSuppression,
		ClientMemoryLimitBytes:     memoryLimitBytes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	s := &supervisor{
		policy:      policy,
		statePath:   statePath,
		binary:      agentBinary,
		argv:        []string{agentConfig},
		clk:         clk,
		eventLogger: nanny.NewEventLogger(clk, policy.EventLogMessageSuppression),
	}
	return s.run(ctx)
}
