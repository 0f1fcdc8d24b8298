// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"sync"
	"time"

	"github.com/fieldglass/fieldglass/lib/clock"
)

// refillRateBytesPerMs is how many bytes of budget each interface
// class accrues per millisecond.
func refillRateBytesPerMs(class InterfaceClass) float64 {
	switch class {
	case ClassEthernet:
		return 100
	case ClassWLAN:
		return 1
	default:
		return 0.1
	}
}

// maxWait bounds how long WaitToSend will sleep in total before
// giving up on a batch.
const maxWait = 60 * time.Second

// maxSleepIncrement caps a single sleep so WaitToSend rechecks the
// deadline periodically instead of committing to one long sleep that
// could run well past a deficit too large to ever satisfy.
const maxSleepIncrement = 5 * time.Second

// burstCapSeconds bounds how much unused budget a bucket can
// accumulate while idle, so a long-idle link cannot later release an
// unbounded burst.
const burstCapSeconds = 10

type bucket struct {
	remaining  float64
	lastRefill time.Time
}

// Controller paces outbound traffic with one token bucket per
// interface class, refilled continuously at that class's rate and
// consulted through [Controller.WaitToSend].
type Controller struct {
	clk        clock.Clock
	classifier *Classifier

	mu      sync.Mutex
	buckets map[InterfaceClass]*bucket
}

// NewController returns a Controller that classifies the active
// interface with classifier and paces against clk.
func NewController(clk clock.Clock, classifier *Classifier) *Controller {
	return &Controller{clk: clk, classifier: classifier, buckets: make(map[InterfaceClass]*bucket)}
}

// EstimateBytes returns the estimated on-wire size of a batch whose
// serialized size is serializedBytes, padded 20% for envelope and
// protocol overhead -- the same margin the connection loop uses when
// deciding whether a batch fits the current bandwidth budget.
func EstimateBytes(serializedBytes int) int {
	return int(float64(serializedBytes) * 1.20)
}

// WaitToSend blocks until estimatedBytes of budget is available in
// the bucket for the currently active interface class, sleeping in
// increments as the bucket refills. It returns false, declining to
// wait further, once the cumulative wait would exceed one minute;
// the caller should skip this cycle and retry later rather than
// block the pipeline indefinitely.
func (c *Controller) WaitToSend(estimatedBytes int) bool {
	deadline := c.clk.Now().Add(maxWait)

	for {
		wait, ok := c.tryConsume(estimatedBytes)
		if ok {
			return true
		}
		if !c.clk.Now().Before(deadline) {
			return false
		}
		if wait > maxSleepIncrement {
			wait = maxSleepIncrement
		}
		if remaining := deadline.Sub(c.clk.Now()); wait > remaining {
			wait = remaining
		}
		c.clk.Sleep(wait)
	}
}

// tryConsume attempts to take estimatedBytes from the current
// class's bucket. On success it returns (0, true). On failure it
// returns the duration the caller should sleep before the bucket
// will hold enough budget.
func (c *Controller) tryConsume(estimatedBytes int) (time.Duration, bool) {
	class := c.classifier.CurrentClass()
	rate := refillRateBytesPerMs(class)

	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[class]
	if !ok {
		b = &bucket{lastRefill: c.clk.Now()}
		c.buckets[class] = b
	}

	now := c.clk.Now()
	elapsedMs := float64(now.Sub(b.lastRefill).Milliseconds())
	if elapsedMs > 0 {
		b.remaining += elapsedMs * rate
		if cap := rate * 1000 * burstCapSeconds; b.remaining > cap {
			b.remaining = cap
		}
		b.lastRefill = now
	}

	if b.remaining >= float64(estimatedBytes) {
		b.remaining -= float64(estimatedBytes)
		return 0, true
	}

	deficit := float64(estimatedBytes) - b.remaining
	waitMs := deficit / rate
	return time.Duration(waitMs) * time.Millisecond, false
}
