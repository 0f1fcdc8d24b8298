// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the secure session: the bespoke envelope
// protocol that gives the client-server channel mutual authentication,
// confidentiality, integrity, and replay protection independent of
// the outer HTTP transport (lib/transport carries the envelopes).
//
// A [Session] is constructed once per peer (one side holds the local
// private key, the other side's certificate) and reused across many
// [Session.Encode] / [Session.Decode] calls for the life of the
// connection -- the RSA-OAEP-sealed cipher properties and the
// AES-CBC-sealed cipher metadata are computed once at construction and
// attached verbatim to every outgoing envelope. [Session.Decode]
// recovers the fresh key material the remote side embedded in its own
// envelope and authenticates the sender's signature over it before
// trusting anything else in the envelope.
//
// [NonceGenerator.Next] produces the strictly increasing
// microsecond timestamp each envelope embeds; the remote side echoes
// it back, and a mismatch is treated as a replay and the whole
// envelope discarded.
package session
