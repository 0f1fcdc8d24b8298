// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fieldglass/fieldglass/lib/clock"
	"github.com/fieldglass/fieldglass/lib/codec"
	"github.com/fieldglass/fieldglass/lib/queue"
	"github.com/fieldglass/fieldglass/lib/wire"
)

// sampleInterval is how often the sampler wakes to read resource
// usage.
const sampleInterval = time.Second

// reportThresholdPercent is the minimum CPU delta, in percentage
// points, that forces a report sooner than reportMaxAge.
const reportThresholdPercent = 5

// reportMaxAge forces a report even with no significant CPU change,
// so the server always has a recent sample.
const reportMaxAge = 10 * time.Second

// Sampler periodically reads the agent's own CPU and memory usage and
// reports it to the outbox as wire.ClientStats messages, once enrolled.
type Sampler struct {
	clk      clock.Clock
	outbox   *queue.Queue
	readFn   func() (rusageReading, bool)
	bootTime int64

	mu             sync.Mutex
	enrolled       bool
	previous       rusageReading
	hasPrevious    bool
	previousAt     time.Time
	lastReported   wire.ClientStats
	hasReported    bool
	lastReportedAt time.Time
}

// New returns a Sampler that reports through outbox, using clk for
// scheduling and bootTime (Unix seconds) as the process start time
// reported in every sample.
func New(clk clock.Clock, outbox *queue.Queue, bootTime int64) *Sampler {
	return &Sampler{clk: clk, outbox: outbox, readFn: readRusage, bootTime: bootTime}
}

// SetEnrolled records that the connection loop has completed its
// first successful exchange with the server. Samples taken before
// this call are never reported -- the server has no client record to
// attach them to yet.
func (s *Sampler) SetEnrolled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrolled = true
}

// Run samples resource usage once per second until stop is closed.
func (s *Sampler) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		s.sampleOnce()
		select {
		case <-stop:
			return
		case <-s.clk.After(sampleInterval):
		}
	}
}

// sampleOnce takes one reading and, if it qualifies, enqueues a
// report.
func (s *Sampler) sampleOnce() {
	current, ok := s.readFn()
	if !ok {
		return
	}
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasPrevious {
		s.previous = current
		s.previousAt = now
		s.hasPrevious = true
		return
	}

	elapsed := now.Sub(s.previousAt)
	if elapsed <= 0 {
		return
	}
	stats := wire.ClientStats{
		CPUUserPercent:   percentOf(current.userMicros-s.previous.userMicros, elapsed),
		CPUSystemPercent: percentOf(current.systemMicros-s.previous.systemMicros, elapsed),
		RSSBytes:         current.rssBytes,
		BootTimeUnix:     s.bootTime,
	}
	s.previous = current
	s.previousAt = now

	if !s.enrolled {
		return
	}
	if s.shouldReportLocked(stats, now) {
		s.reportLocked(stats, now)
	}
}

// percentOf converts a microsecond delta into a percentage of one
// CPU core over elapsed wall-clock time.
func percentOf(deltaMicros int64, elapsed time.Duration) float64 {
	if deltaMicros <= 0 {
		return 0
	}
	return float64(deltaMicros) / float64(elapsed.Microseconds()) * 100
}

// shouldReportLocked decides whether stats differs enough from the
// last reported sample, or enough time has passed, to warrant a
// report. Must be called with s.mu held.
func (s *Sampler) shouldReportLocked(stats wire.ClientStats, now time.Time) bool {
	if !s.hasReported {
		return true
	}
	if now.Sub(s.lastReportedAt) >= reportMaxAge {
		return true
	}
	if absDiff(stats.CPUUserPercent, s.lastReported.CPUUserPercent) > reportThresholdPercent {
		return true
	}
	if absDiff(stats.CPUSystemPercent, s.lastReported.CPUSystemPercent) > reportThresholdPercent {
		return true
	}
	return false
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}

// reportLocked encodes and enqueues stats as a normal outbox message.
// Must be called with s.mu held.
func (s *Sampler) reportLocked(stats wire.ClientStats, now time.Time) {
	payload, err := codec.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.outbox.Enqueue(wire.Message{
		SessionID: wire.StatsSessionID,
		Kind:      wire.TypeMessage,
		ArgsType:  wire.ClientStatsArgsType,
		Args:      payload,
		Priority:  wire.PriorityNormal,
	}); err != nil {
		slog.Warn("sampler could not enqueue client stats", "error", err)
	}
	s.lastReported = stats
	s.hasReported = true
	s.lastReportedAt = now
}
