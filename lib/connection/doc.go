// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package connection implements the supervised connection loop: the
// network driver that discovers and pins a control server
// certificate, maintains a secure session against it, paces outbound
// traffic through the admission controller, drains the outbox into
// signed envelopes, decodes responses into the inbox, and triggers
// enrollment when the server asks for it.
//
// [Loop.Run] drives the cycle forever until stopped. Each iteration
// is [Loop.runCycle], kept free of direct package dependencies on
// transport and clock where practical so it can be driven
// deterministically in tests.
package connection
