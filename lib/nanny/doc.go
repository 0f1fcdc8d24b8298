// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package nanny implements the supervisor that keeps the agent
// process running: it watches a heartbeat, kills an unresponsive or
// over-budget child, and respawns it after a cooldown.
//
// [State] is the small amount of information that must survive a
// supervisor restart -- the last observed heartbeat, the most recent
// nanny-level message and status, and which binary and arguments the
// child was started with -- and is persisted with
// [github.com/fieldglass/fieldglass/lib/atomicfile], which writes a
// temporary file, fsyncs it, and renames it into place.
//
// [Tick] is the supervisor's decision function, deliberately kept
// free of process and file I/O: given a [Policy] and the currently
// observed state of the child, it returns what to do and how long to
// wait before checking again. The control loop in cmd/fieldglass-nanny
// is a thin driver around it, which is what makes the decision logic
// itself straightforward to test.
//
// [EventLogger] suppresses repeated identical log lines within a
// configurable window, so a child stuck failing the same way does not
// flood the log.
package nanny
