// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package nanny

import "time"

// unresponsiveKillGrace is added on top of Policy.UnresponsiveKillPeriod
// before the supervisor actually kills a silent child, so that a
// heartbeat gap caused by a system suspend (or ordinary scheduling
// jitter) does not by itself trigger a kill.
const unresponsiveKillGrace = 2 * time.Second

// Action is what [Tick] recommends the control loop do this cycle.
type Action int

const (
	// ActionNone means keep waiting; nothing to do this cycle.
	ActionNone Action = iota
	// ActionKillUnresponsive means the child has gone silent past
	// its kill period and should be killed.
	ActionKillUnresponsive
	// ActionKillMemoryLimit means the child exceeded its configured
	// memory budget and should be killed.
	ActionKillMemoryLimit
	// ActionRespawn means the child is not running and its
	// resurrection cooldown has elapsed; start it.
	ActionRespawn
)

// TickInput is the state [Tick] reasons about. It carries no process
// handles or file I/O, which is what makes Tick pure and testable.
type TickInput struct {
	// Now is the current time.
	Now time.Time

	// Heartbeat is the last liveness signal observed from the child,
	// as a microsecond Unix timestamp.
	Heartbeat int64

	// ChildAlive reports whether the control loop currently believes
	// the child process is running.
	ChildAlive bool

	// ChildRSSBytes is the child's current resident set size. Only
	// consulted when ChildAlive is true.
	ChildRSSBytes uint64
}

// TickResult is [Tick]'s recommendation.
type TickResult struct {
	// Action is what the control loop should do this cycle.
	Action Action

	// NewHeartbeat is set together with ActionRespawn: the
	// heartbeat value the control loop should record once the new
	// child has actually started, marking the moment it became
	// responsible for a fresh resurrection cooldown.
	NewHeartbeat int64

	// NextDelay is how long the control loop should wait before
	// calling Tick again.
	NextDelay time.Duration
}

// Tick decides what the supervisor should do this cycle given policy
// and the observed state of the child in input.
func Tick(policy Policy, input TickInput) TickResult {
	if input.ChildAlive {
		return tickAlive(policy, input)
	}
	return tickDead(policy, input)
}

func tickAlive(policy Policy, input TickInput) TickResult {
	silence := input.Now.Sub(time.UnixMicro(input.Heartbeat))
	if silence > policy.UnresponsiveKillPeriod+unresponsiveKillGrace {
		return TickResult{Action: ActionKillUnresponsive, NextDelay: policy.UnresponsiveGracePeriod}
	}

	if policy.ClientMemoryLimitBytes > 0 && input.ChildRSSBytes > policy.ClientMemoryLimitBytes {
		return TickResult{Action: ActionKillMemoryLimit, NextDelay: policy.UnresponsiveGracePeriod}
	}

	remaining := policy.UnresponsiveKillPeriod + unresponsiveKillGrace - silence
	if remaining <= 0 {
		remaining = time.Second
	}
	return TickResult{Action: ActionNone, NextDelay: remaining}
}

func tickDead(policy Policy, input TickInput) TickResult {
	readyAt := time.UnixMicro(input.Heartbeat).Add(policy.UnresponsiveKillPeriod).Add(policy.ResurrectionPeriod)
	if !input.Now.Before(readyAt) {
		return TickResult{Action: ActionRespawn, NewHeartbeat: input.Now.UnixMicro()}
	}
	return TickResult{Action: ActionNone, NextDelay: readyAt.Sub(input.Now)}
}
