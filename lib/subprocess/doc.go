// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package subprocess delegates actions the agent process does not
// perform directly to a configured helper executable, communicating
// over the helper's stdin and stdout with length-prefixed frames.
//
// [Delegator] owns at most one live child at a time and runs three
// goroutines against it: a writer that frames and sends queued
// [Request] values, a reader that frames-decodes [Response] values
// and wakes the caller waiting on the matching request id, and an
// error reader that copies the child's stderr into the agent's own
// log line by line. [Delegator.Call] is the synchronous entry point
// handlers use; internally it is a request enqueued on the writer and
// a response awaited from the reader.
//
// A frame larger than [MaxFrameSize] is treated as a protocol
// violation serious enough to warrant discarding the child entirely
// rather than trying to resynchronize the stream. Children killed but
// not yet reaped accumulate on a bounded "undead" list;
// [Delegator.Call] refuses to spawn a replacement once that list is
// full, since an unbounded number of zombie helper processes is its
// own resource exhaustion.
package subprocess
