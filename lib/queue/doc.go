// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue implements the bounded, thread-safe message queues
// that decouple the connection loop from the action dispatcher: one
// inbox (server -> dispatcher) and one outbox (handlers -> server),
// constructed independently with their own message-count and
// args-size limits (the two arguments to [New]).
//
// [Queue.Enqueue] blocks until the message fits within both limits,
// except that an empty queue always accepts exactly one message
// regardless of its size -- the progress guarantee that keeps a
// single oversized message from deadlocking the pipeline.
// [Queue.EnqueuePriority] bypasses both the wait and the bounds check
// entirely, for traffic that must never be dropped (enrollment). [Queue.Dequeue] returns a batch honoring the same two
// limits and the same "always one" exception, optionally blocking
// when empty.
//
// Shutdown is cooperative: [Queue.Shutdown] sets a flag and wakes any
// blocked caller, which observes the flag and returns rather than
// waiting forever.
package queue
