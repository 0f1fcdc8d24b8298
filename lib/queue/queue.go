// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"fmt"
	"sync"

	"github.com/fieldglass/fieldglass/lib/wire"
)

// ErrShutdown is returned by Enqueue and Dequeue when the queue has
// been shut down while the caller was waiting.
var ErrShutdown = fmt.Errorf("queue: shut down")

// Queue is a bounded, thread-safe FIFO of wire.Message values with
// two independent limits: a maximum item count and a maximum sum of
// message sizes. See the package doc for the admission rules.
type Queue struct {
	maxCount     int
	maxArgsBytes int

	mu       sync.Mutex
	grew     *sync.Cond
	shrunk   *sync.Cond
	items    []wire.Message
	argsSize int
	shutdown bool
}

// New returns an empty Queue bounded by maxCount items and
// maxArgsBytes of cumulative message size.
func New(maxCount, maxArgsBytes int) *Queue {
	q := &Queue{maxCount: maxCount, maxArgsBytes: maxArgsBytes}
	q.grew = sync.NewCond(&q.mu)
	q.shrunk = sync.NewCond(&q.mu)
	return q
}

// fits reports whether adding a message of the given size to a queue
// currently holding count items and argsSize bytes would stay within
// both limits.
func (q *Queue) fits(count, argsSize, addSize int) bool {
	return count+1 <= q.maxCount && argsSize+addSize <= q.maxArgsBytes
}

// Enqueue adds m to the tail of the queue, blocking until it fits
// within both limits -- except that an empty queue unconditionally
// accepts one message no matter its size, guaranteeing progress even
// for an oversized item. Wakes any blocked Dequeue call. Returns
// ErrShutdown if the queue is shut down while waiting.
func (q *Queue) Enqueue(m wire.Message) error {
	size := m.Size()

	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.shutdown && len(q.items) > 0 && !q.fits(len(q.items), q.argsSize, size) {
		q.shrunk.Wait()
	}
	if q.shutdown {
		return ErrShutdown
	}

	q.items = append(q.items, m)
	q.argsSize += size
	q.grew.Broadcast()
	return nil
}

// EnqueuePriority inserts m at the head of the queue without waiting
// and without checking either limit -- the queue may temporarily
// exceed both. Reserved for traffic that must never be dropped.
func (q *Queue) EnqueuePriority(m wire.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append([]wire.Message{m}, q.items...)
	q.argsSize += m.Size()
	q.grew.Broadcast()
}

// Dequeue removes and returns a batch from the head of the queue,
// taking messages while the running total would satisfy both
// maxBatchCount and maxBatchBytes, with the same "always one"
// exception as Enqueue: the first message in an otherwise-empty batch
// is always taken regardless of its size. If the queue is empty and
// blocking is true, Dequeue waits for a message to arrive; if false,
// it returns an empty batch immediately. Wakes any blocked Enqueue
// call. Returns ErrShutdown only if the queue is shut down while
// waiting with no items available.
func (q *Queue) Dequeue(maxBatchCount, maxBatchBytes int, blocking bool) ([]wire.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.shutdown && len(q.items) == 0 && blocking {
		q.grew.Wait()
	}
	if len(q.items) == 0 {
		if q.shutdown {
			return nil, ErrShutdown
		}
		return nil, nil
	}

	batch := make([]wire.Message, 0, min(len(q.items), maxBatchCount))
	batchBytes := 0
	for len(q.items) > 0 {
		size := q.items[0].Size()
		if len(batch) > 0 && !fitsBatch(len(batch), batchBytes, size, maxBatchCount, maxBatchBytes) {
			break
		}
		batch = append(batch, q.items[0])
		batchBytes += size
		q.items = q.items[1:]
		q.argsSize -= size
	}

	q.shrunk.Broadcast()
	return batch, nil
}

func fitsBatch(count, bytes, addSize, maxCount, maxBytes int) bool {
	return count+1 <= maxCount && bytes+addSize <= maxBytes
}

// CurrentCount returns the number of items currently queued.
func (q *Queue) CurrentCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// CurrentArgsSize returns the cumulative message size currently
// queued.
func (q *Queue) CurrentArgsSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.argsSize
}

// Shutdown marks the queue as shut down and wakes every blocked
// Enqueue or Dequeue caller. Idempotent.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shutdown = true
	q.grew.Broadcast()
	q.shrunk.Broadcast()
}
