// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"testing"
	"time"

	"github.com/fieldglass/fieldglass/lib/clock"
)

func fixedClassifier(clk clock.Clock, class InterfaceClass) *Classifier {
	c := NewClassifier(clk)
	c.fn = func() InterfaceClass { return class }
	return c
}

func TestWaitToSendSucceedsImmediatelyWithinBudget(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	ctrl := NewController(clk, fixedClassifier(clk, ClassEthernet))
	ctrl.buckets[ClassEthernet] = &bucket{remaining: 5000, lastRefill: clk.Now()}

	if !ctrl.WaitToSend(1000) {
		t.Fatalf("expected a send within the bucket's existing budget to succeed without waiting")
	}
}

func TestWaitToSendOnMobileDrainsExactBudget(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	ctrl := NewController(clk, fixedClassifier(clk, ClassMobile))

	b := &bucket{remaining: 50, lastRefill: clk.Now()}
	ctrl.buckets[ClassMobile] = b

	if !ctrl.WaitToSend(50) {
		t.Fatalf("expected send within exact remaining budget to succeed")
	}
	if b.remaining != 0 {
		t.Fatalf("expected bucket to be drained, got %v remaining", b.remaining)
	}
}

func TestWaitToSendWaitsForRefillThenSucceeds(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	ctrl := NewController(clk, fixedClassifier(clk, ClassWLAN))

	ctrl.buckets[ClassWLAN] = &bucket{remaining: 0, lastRefill: clk.Now()}

	done := make(chan bool, 1)
	go func() {
		done <- ctrl.WaitToSend(1000)
	}()

	clk.WaitForTimers(1)
	clk.Advance(1000 * time.Millisecond)

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("expected WaitToSend to succeed once the bucket refilled")
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitToSend did not return after the bucket refilled")
	}
}

func TestWaitToSendGivesUpPastSixtySeconds(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	ctrl := NewController(clk, fixedClassifier(clk, ClassMobile))

	ctrl.buckets[ClassMobile] = &bucket{remaining: 0, lastRefill: clk.Now()}

	done := make(chan bool, 1)
	go func() {
		done <- ctrl.WaitToSend(100_000_000)
	}()

	clk.WaitForTimers(1)
	clk.Advance(70 * time.Second)

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected WaitToSend to give up on an unreachable budget")
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitToSend did not give up after exceeding the wait budget")
	}
}

func TestRefillRatesDifferByClass(t *testing.T) {
	if refillRateBytesPerMs(ClassEthernet) <= refillRateBytesPerMs(ClassWLAN) {
		t.Fatalf("expected ethernet to refill faster than WLAN")
	}
	if refillRateBytesPerMs(ClassWLAN) <= refillRateBytesPerMs(ClassMobile) {
		t.Fatalf("expected WLAN to refill faster than mobile")
	}
}
