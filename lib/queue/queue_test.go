// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"testing"
	"time"

	"github.com/fieldglass/fieldglass/lib/wire"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New(10, 10_000)

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(wire.Message{RequestID: uint64(i)}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}

	batch, err := q.Dequeue(10, 10_000, false)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(batch) != 5 {
		t.Fatalf("got %d messages, want 5", len(batch))
	}
	for i, m := range batch {
		if m.RequestID != uint64(i) {
			t.Fatalf("message %d: got RequestID %d, want %d (FIFO violated)", i, m.RequestID, i)
		}
	}
}

func TestEnqueuePriorityGoesFirst(t *testing.T) {
	q := New(10, 10_000)

	if err := q.Enqueue(wire.Message{RequestID: 1}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.EnqueuePriority(wire.Message{RequestID: 2})

	batch, err := q.Dequeue(10, 10_000, false)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(batch) != 2 || batch[0].RequestID != 2 {
		t.Fatalf("got %+v, want priority message first", batch)
	}
}

func TestEnqueueWithinLimitsNeverBlocks(t *testing.T) {
	q := New(3, 300)

	done := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			done <- q.Enqueue(wire.Message{RequestID: uint64(i), Args: make([]byte, 10)})
		}(i)
	}

	for i := 0; i < 3; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Enqueue blocked when it should have fit within limits")
		}
	}
}

func TestEnqueueOnEmptyQueueNeverBlocks(t *testing.T) {
	q := New(1, 10)

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(wire.Message{Args: make([]byte, 10_000)})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue on an empty queue blocked despite the progress guarantee")
	}

	if q.CurrentCount() != 1 {
		t.Fatalf("got count %d, want 1", q.CurrentCount())
	}
}

func TestDequeueNonBlockingReturnsEmpty(t *testing.T) {
	q := New(10, 10_000)
	batch, err := q.Dequeue(10, 10_000, false)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("got %d messages, want 0", len(batch))
	}
}

func TestDequeueBlockingWakesOnEnqueue(t *testing.T) {
	q := New(10, 10_000)

	result := make(chan []wire.Message, 1)
	go func() {
		batch, _ := q.Dequeue(10, 10_000, true)
		result <- batch
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Enqueue(wire.Message{RequestID: 42}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case batch := <-result:
		if len(batch) != 1 || batch[0].RequestID != 42 {
			t.Fatalf("got %+v", batch)
		}
	case <-time.After(time.Second):
		t.Fatal("blocking Dequeue did not wake on Enqueue")
	}
}

func TestShutdownUnsticksBlockedDequeue(t *testing.T) {
	q := New(10, 10_000)

	result := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(10, 10_000, true)
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()

	select {
	case err := <-result:
		if err != ErrShutdown {
			t.Fatalf("got %v, want ErrShutdown", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not unstick blocked Dequeue")
	}
}
