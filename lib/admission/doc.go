// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package admission implements the network admission controller the
// connection loop consults before sending a batch: a per-interface-class
// token bucket that paces outbound traffic so the agent does not
// saturate a metered or low-bandwidth link.
//
// [Classifier] determines which class -- ethernet, WLAN, or mobile --
// the system's active network interface belongs to, caching the
// result briefly since the check touches the filesystem.
// [Controller.WaitToSend] consults the bucket for the current class,
// sleeping in increments to let it refill when the batch would
// exceed the available budget, and giving up once the total wait
// would exceed one minute -- better to skip a cycle than to starve
// the dispatcher indefinitely.
package admission
