// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport performs the HTTP side of talking to a control
// server: fetching and pinning its certificate at discovery time, and
// exchanging envelopes once a session exists.
//
// Every call optionally routes through a forward HTTP proxy, since
// the connection loop retries across a Cartesian product of control
// URLs and proxy servers during discovery.
package transport
