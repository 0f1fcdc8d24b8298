// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package nanny

import (
	"testing"
	"time"

	"github.com/fieldglass/fieldglass/lib/clock"
)

func TestEventLoggerSuppressesRepeatWithinWindow(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	logger := NewEventLogger(clk, time.Minute)

	logger.Logf("killing unresponsive child pid=%d", 42)
	firstAt := logger.lastAt

	clk.Advance(30 * time.Second)
	logger.Logf("killing unresponsive child pid=%d", 42)

	if !logger.lastAt.Equal(firstAt) {
		t.Fatalf("expected lastAt to stay at %v for a suppressed repeat, got %v", firstAt, logger.lastAt)
	}
}

func TestEventLoggerAllowsRepeatAfterWindow(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	logger := NewEventLogger(clk, time.Minute)

	logger.Logf("killing unresponsive child pid=%d", 42)
	firstAt := logger.lastAt

	clk.Advance(2 * time.Minute)
	logger.Logf("killing unresponsive child pid=%d", 42)

	if !logger.lastAt.After(firstAt) {
		t.Fatalf("expected lastAt to advance once the suppression window passed")
	}
}

func TestEventLoggerAllowsDifferentMessageImmediately(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	logger := NewEventLogger(clk, time.Minute)

	logger.Logf("killing unresponsive child pid=%d", 42)
	logger.Logf("respawning child")

	if logger.last != "respawning child" {
		t.Fatalf("got last message %q", logger.last)
	}
}
