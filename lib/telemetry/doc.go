// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry samples the agent's own resource usage and
// reports it to the server.
//
// [Sampler] runs as a background loop, waking once a second to read
// the process's cumulative user/system CPU time and resident set
// size via getrusage. It converts the cumulative reading into a
// per-second percentage using the previous sample, and publishes a
// [wire.ClientStats] message on [wire.StatsSessionID] -- but only
// once [Sampler.SetEnrolled] has been called, and only when the new
// sample differs from the last one reported by more than five
// percentage points of CPU or when ten seconds have elapsed since the
// last report, whichever comes first. Reports go through the ordinary
// [queue.Queue.Enqueue] as normal-priority messages, subject to the
// outbox's count and size limits like any other outbound message.
package telemetry
