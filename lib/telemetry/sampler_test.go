// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"testing"
	"time"

	"github.com/fieldglass/fieldglass/lib/clock"
	"github.com/fieldglass/fieldglass/lib/queue"
	"github.com/fieldglass/fieldglass/lib/wire"
)

func newTestSampler(clk clock.Clock, readings []rusageReading) (*Sampler, *queue.Queue) {
	outbox := queue.New(100, 1_000_000)
	s := New(clk, outbox, 1700000000)
	i := 0
	s.readFn = func() (rusageReading, bool) {
		if i >= len(readings) {
			return readings[len(readings)-1], true
		}
		r := readings[i]
		i++
		return r, true
	}
	return s, outbox
}

func TestFirstSampleEstablishesBaselineWithoutReporting(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	s, outbox := newTestSampler(clk, []rusageReading{{userMicros: 1000, systemMicros: 0, rssBytes: 4096}})
	s.SetEnrolled()

	s.sampleOnce()

	if outbox.CurrentCount() != 0 {
		t.Fatalf("expected no report from the first sample, got %d queued", outbox.CurrentCount())
	}
}

func TestSampleBeforeEnrollmentNeverReports(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	s, outbox := newTestSampler(clk, []rusageReading{
		{userMicros: 0, systemMicros: 0, rssBytes: 0},
		{userMicros: 1_000_000, systemMicros: 0, rssBytes: 0},
	})

	s.sampleOnce()
	clk.Advance(time.Second)
	s.sampleOnce()

	if outbox.CurrentCount() != 0 {
		t.Fatalf("expected no report before SetEnrolled, got %d queued", outbox.CurrentCount())
	}
}

func TestSignificantCPUChangeReportsImmediately(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	// 1s of wall time, 1s of user CPU time -> 100% user CPU, well past
	// the 5 percentage point threshold from a zero baseline.
	s, outbox := newTestSampler(clk, []rusageReading{
		{userMicros: 0, systemMicros: 0, rssBytes: 1000},
		{userMicros: 1_000_000, systemMicros: 0, rssBytes: 1000},
	})
	s.SetEnrolled()

	s.sampleOnce()
	clk.Advance(time.Second)
	s.sampleOnce()

	if outbox.CurrentCount() != 1 {
		t.Fatalf("expected one report, got %d", outbox.CurrentCount())
	}
	batch, err := outbox.Dequeue(10, 1_000_000, false)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if batch[0].SessionID != wire.StatsSessionID {
		t.Fatalf("got session id %q, want %q", batch[0].SessionID, wire.StatsSessionID)
	}
	if batch[0].Priority != wire.PriorityNormal {
		t.Fatalf("expected telemetry to be enqueued with PriorityNormal")
	}
}

func TestSmallCPUChangeDoesNotReportBeforeMaxAge(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	s, outbox := newTestSampler(clk, []rusageReading{
		{userMicros: 0, systemMicros: 0, rssBytes: 1000},
		{userMicros: 1_000_000, systemMicros: 0, rssBytes: 1000},
		{userMicros: 1_100_000, systemMicros: 0, rssBytes: 1000},
	})
	s.SetEnrolled()

	s.sampleOnce()
	clk.Advance(time.Second)
	s.sampleOnce() // first real sample: 100% user CPU, reports and becomes baseline
	if outbox.CurrentCount() != 1 {
		t.Fatalf("expected the first qualifying sample to report, got %d", outbox.CurrentCount())
	}
	if _, err := outbox.Dequeue(10, 1_000_000, false); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	// 100ms later, another 100ms of user CPU accrued -> still ~100%
	// user CPU, within the 5 percentage point threshold of the last
	// reported sample, and well under the 10s max age.
	clk.Advance(100 * time.Millisecond)
	s.sampleOnce()

	if outbox.CurrentCount() != 0 {
		t.Fatalf("expected no report for a sample within threshold and max age, got %d", outbox.CurrentCount())
	}
}

func TestMaxAgeForcesReportEvenWithoutSignificantChange(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	s, outbox := newTestSampler(clk, []rusageReading{
		{userMicros: 0, systemMicros: 0, rssBytes: 1000},
		{userMicros: 10_000, systemMicros: 0, rssBytes: 1000},
		{userMicros: 20_000, systemMicros: 0, rssBytes: 1000},
	})
	s.SetEnrolled()

	s.sampleOnce()
	clk.Advance(time.Second)
	s.sampleOnce() // ~1% user CPU, first qualifying sample always reports
	if _, err := outbox.Dequeue(10, 1_000_000, false); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	clk.Advance(reportMaxAge + time.Second)
	s.sampleOnce() // same ~1% CPU, but reportMaxAge has elapsed

	if outbox.CurrentCount() != 1 {
		t.Fatalf("expected the max-age path to force a report, got %d", outbox.CurrentCount())
	}
}
