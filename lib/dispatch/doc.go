// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch runs the single worker loop that turns inbound
// [wire.Message] batches into actions and exactly-one terminal
// [wire.Status] reply per request.
//
// [HandlerFunc] implementations are registered by action name in a
// [Registry]. [Dispatcher] dequeues batches from an inbox
// (lib/queue), looks up the handler for each message's Name, and
// invokes it with an [ActionContext] bound to that one request. The
// context is the handler's only way to talk back to the pipeline:
// [ActionContext.SendMessage] queues an intermediate reply,
// [ActionContext.SetError] records a failure, and the dispatcher
// itself appends the final status after the handler returns --
// handlers never send their own STATUS message.
//
// An unrecognized action name or a handler that panics still produces
// exactly one STATUS, carrying a generic error description, so the
// pipeline's per-request invariant holds regardless of handler
// behavior.
package dispatch
