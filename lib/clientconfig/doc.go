// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package clientconfig loads and persists the agent's configuration
// file: the control server URLs and optional proxies to try, the
// pinned CA certificate, the client's RSA identity, and the
// subprocess helper to delegate platform-specific actions to.
//
// Loading is two-pass. The base file -- deployed read-only alongside
// the binary or baked into an image -- supplies every field,
// including an optional seed private key. A second, optional
// writeback file layers two fields on top: the private key and the
// last-seen server certificate serial number. Separating these two
// concerns lets the base file be shared read-only across a fleet
// while each instance's enrolled identity and replay state live in a
// small file the agent owns outright.
//
// [Config.ResetKey] generates a fresh RSA identity and recomputes the
// derived client id; [Config.CheckUpdateServerSerial] enforces that
// the server certificate's serial number only moves forward, the
// mechanism that defeats a downgrade to a previously-revoked
// certificate. Both persist to the writeback file via
// [github.com/fieldglass/fieldglass/lib/atomicfile], computing the
// delta against a fresh read of the base file so a value already
// supplied there is never needlessly duplicated into the writeback
// file.
package clientconfig
