// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package nanny

import "time"

// Policy is the set of tunable thresholds driving [Tick]'s
// decisions.
type Policy struct {
	// ResurrectionPeriod is the cooldown after a child dies before
	// the supervisor respawns it.
	ResurrectionPeriod time.Duration

	// UnresponsiveKillPeriod is how long the heartbeat may go silent
	// before the supervisor kills the child.
	UnresponsiveKillPeriod time.Duration

	// UnresponsiveGracePeriod is how long the supervisor waits after
	// issuing a kill before checking whether the child is actually
	// gone.
	UnresponsiveGracePeriod time.Duration

	// EventLogMessageSuppression bounds how often the supervisor
	// repeats an identical log line.
	EventLogMessageSuppression time.Duration

	// ClientMemoryLimitBytes is the resident set size past which the
	// supervisor kills the child for exceeding its memory budget.
	// Zero disables the check.
	ClientMemoryLimitBytes uint64
}
