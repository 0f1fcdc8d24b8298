// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Type distinguishes the three kinds of Message that flow through the
// inbox and outbox.
type Type uint8

const (
	// TypeMessage is a normal request or response payload.
	TypeMessage Type = iota
	// TypeStatus marks the terminal reply to a request. Every
	// dispatched request produces exactly one Message of this type.
	TypeStatus
	// TypeIterator marks a message that is part of a streamed,
	// multi-part response (e.g. a directory walk); the final part
	// carries IteratorFinished.
	TypeIterator
)

// Priority distinguishes messages that bypass queue admission control
// (see lib/queue) from ordinary traffic.
type Priority uint8

const (
	// PriorityNormal messages are subject to the queue's max_count and
	// max_args_bytes limits.
	PriorityNormal Priority = iota
	// PriorityHigh messages are inserted at the head of a queue
	// without waiting and without checking bounds. Reserved for
	// enrollment traffic that must never be dropped.
	PriorityHigh
)

// Message is the wire unit exchanged between client and server, and
// internally between the connection loop, the dispatcher, and action
// handlers via the inbox/outbox. Messages are value objects: cheap to
// copy, immutable once placed in a queue.
type Message struct {
	// SessionID names the server-side flow this message belongs to
	// (opaque to the client, e.g. "aff4:/flows/CA:Enrol").
	SessionID string `cbor:"session_id"`

	// RequestID identifies the request this message is part of.
	RequestID uint64 `cbor:"request_id"`

	// ResponseID is sequenced by the responder, starting at 1, and
	// strictly increasing within a single request.
	ResponseID uint64 `cbor:"response_id,omitempty"`

	// TaskID identifies the scheduling task that produced this
	// message, independent of RequestID.
	TaskID uint64 `cbor:"task_id,omitempty"`

	// Name is the action name for a request (e.g. "Grep", "StatFile",
	// "GetClientInfo"). Empty on responses.
	Name string `cbor:"name,omitempty"`

	// ArgsType tags the concrete type serialized into Args (the
	// original protocol's args_rdf_name), letting a receiver validate
	// the payload shape before parsing it.
	ArgsType string `cbor:"args_rdf_name,omitempty"`

	// Args is the opaque, pre-serialized payload. Its schema is
	// determined by ArgsType and interpreted only by the matching
	// action handler -- the core never inspects it.
	Args []byte `cbor:"args,omitempty"`

	// Kind distinguishes MESSAGE, STATUS, and ITERATOR framing.
	Kind Type `cbor:"type"`

	// Priority marks whether this message was enqueued via the
	// priority path.
	Priority Priority `cbor:"priority,omitempty"`
}

// Size estimates the wire footprint of m for queue accounting: the
// length of Args plus a fixed overhead for the surrounding fields.
// Queues account payload size this way rather than re-encoding every
// message on every bounds check.
func (m Message) Size() int {
	const fixedOverhead = 64
	return len(m.Args) + len(m.SessionID) + len(m.Name) + len(m.ArgsType) + fixedOverhead
}

// MessageList is a simple, ordered batch of messages -- the unit that
// SignedMessageList wraps and the secure session compresses.
type MessageList struct {
	Job []Message `cbor:"job"`
}
