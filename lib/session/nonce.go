// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"

	"github.com/fieldglass/fieldglass/lib/clock"
)

// NonceGenerator produces the strictly increasing microsecond
// timestamp embedded in every outbound envelope. It survives
// backwards clock jumps: each call returns max(last+1, now_us),
// guaranteeing monotonicity regardless of clock jitter.
type NonceGenerator struct {
	clk clock.Clock

	mu   sync.Mutex
	last int64
}

// NewNonceGenerator returns a generator that reads time from clk.
func NewNonceGenerator(clk clock.Clock) *NonceGenerator {
	return &NonceGenerator{clk: clk}
}

// Next returns the next nonce and remembers it.
func (g *NonceGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	nowMicros := g.clk.Now().UnixMicro()
	next := g.last + 1
	if nowMicros > next {
		next = nowMicros
	}
	g.last = next
	return next
}
