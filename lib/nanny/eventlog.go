// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package nanny

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldglass/fieldglass/lib/clock"
)

// EventLogger logs supervisor events, dropping a message identical
// to the immediately preceding one if it recurs within the
// suppression window -- keeping a child stuck in a failure loop from
// flooding the log with the same line.
type EventLogger struct {
	clk         clock.Clock
	suppression time.Duration

	mu     sync.Mutex
	last   string
	lastAt time.Time
}

// NewEventLogger returns an EventLogger that suppresses a repeated
// identical message within suppression of its previous occurrence.
func NewEventLogger(clk clock.Clock, suppression time.Duration) *EventLogger {
	return &EventLogger{clk: clk, suppression: suppression}
}

// Logf formats a message and logs it at warning level, unless it is
// identical to the last message logged within the suppression
// window.
func (e *EventLogger) Logf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)

	e.mu.Lock()
	now := e.clk.Now()
	if message == e.last && now.Sub(e.lastAt) < e.suppression {
		e.mu.Unlock()
		return
	}
	e.last = message
	e.lastAt = now
	e.mu.Unlock()

	slog.Warn(message)
}
