// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// fieldglass-agent is the endpoint client: it loads its configuration,
// negotiates a secure session with a control server, and runs the
// message pipeline (connection loop, dispatcher, telemetry sampler)
// until signaled to stop.
//
// Usage: fieldglass-agent <config-file> [heartbeat-file]
//
// heartbeat-file defaults to <config-file's directory>/nanny-state.json,
// the same state file cmd/fieldglass-nanny watches.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fieldglass/fieldglass/lib/admission"
	"github.com/fieldglass/fieldglass/lib/clientconfig"
	"github.com/fieldglass/fieldglass/lib/clock"
	"github.com/fieldglass/fieldglass/lib/connection"
	"github.com/fieldglass/fieldglass/lib/dispatch"
	"github.com/fieldglass/fieldglass/lib/nanny"
	"github.com/fieldglass/fieldglass/lib/process"
	"github.com/fieldglass/fieldglass/lib/queue"
	"github.com/fieldglass/fieldglass/lib/telemetry"
)

// queueMaxCount and queueMaxArgsBytes bound each of the pipeline's two queues.
const (
	queueMaxCount     = 10_000
	queueMaxArgsBytes = 50_000_000
)

const heartbeatInterval = 5 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		return fmt.Errorf("usage: fieldglass-agent <config-file> [heartbeat-file]")
	}
	configPath := os.Args[1]
	heartbeatPath := filepath.Join(filepath.Dir(configPath), "nanny-state.json")
	if len(os.Args) == 3 {
		heartbeatPath = os.Args[2]
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := clientconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Info("fieldglass-agent starting", "client_id", cfg.ClientID(), "config", configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outbox := queue.New(queueMaxCount, queueMaxArgsBytes)
	inbox := queue.New(queueMaxCount, queueMaxArgsBytes)
	defer outbox.Shutdown()
	defer inbox.Shutdown()

	clk := clock.Real()
	admissionController := admission.NewController(clk, admission.NewClassifier(clk))
	sampler := telemetry.New(clk, outbox, clk.Now().Unix())

	registry := dispatch.NewRegistry[*clientconfig.Config]()
	registerBuiltinActions(registry)
	dispatcher := dispatch.New(registry, inbox, outbox, cfg)

	loop := connection.New(cfg, outbox, inbox, clk, admissionController, sampler)

	stopCh := make(chan struct{})
	go sampler.Run(stopCh)
	go loop.Run(ctx, stopCh)
	go runHeartbeat(ctx, heartbeatPath, clk)

	dispatchErr := make(chan error, 1)
	go func() { dispatchErr <- dispatcher.Run() }()

	select {
	case <-ctx.Done():
		logger.Info("fieldglass-agent shutting down")
	case err := <-dispatchErr:
		logger.Error("dispatcher exited", "error", err)
	}
	close(stopCh)
	return nil
}

// runHeartbeat periodically records this process's liveness in the
// shared state file the supervisor watches, until ctx is done.
func runHeartbeat(ctx context.Context, path string, clk clock.Clock) {
	for {
		if err := nanny.UpdateHeartbeat(path, clk.Now().UnixMicro()); err != nil {
			slog.Warn("agent: writing heartbeat failed", "error", err, "path", path)
		}
		select {
		case <-ctx.Done():
			return
		case <-clk.After(heartbeatInterval):
		}
	}
}
