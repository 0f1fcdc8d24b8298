// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the data types that cross the boundary between
// the client and the control server: [Message], the unit exchanged
// through the inbox and outbox; [Status], the terminal reply every
// dispatched request produces; [MessageList] and [SignedMessageList],
// the batch containers the secure session encodes into an envelope;
// [CipherProperties], the per-session symmetric key material; and
// [Envelope], the outermost framing structure of one HTTP exchange.
//
// Every type here is CBOR-encoded with Core Deterministic Encoding
// (lib/codec). The envelope's HMAC does not rely on re-encoding: it is
// computed over the envelope's ciphertext fields and API version
// exactly as carried (see [Envelope.HMACInput]).
//
// Types in this package are value objects. None of them own a mutex
// or a file handle; ownership and concurrency live one layer up, in
// lib/queue and lib/session.
package wire
