// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package cipher

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"hash"
)

// HMAC computes an HMAC-SHA1 incrementally. The envelope's integrity
// tag ("FULL_HMAC") is computed over a concatenation of several
// fields (see wire.Envelope.HMACInput); Update lets the caller feed
// those fields without building an intermediate buffer, though
// lib/session currently does build one for clarity.
type HMAC struct {
	h hash.Hash
}

// NewHMAC returns an HMAC-SHA1 keyed with key.
func NewHMAC(key []byte) *HMAC {
	return &HMAC{h: hmac.New(sha1.New, key)}
}

// Update feeds more data into the HMAC.
func (h *HMAC) Update(data []byte) { h.h.Write(data) }

// Final returns the HMAC tag of everything written so far.
func (h *HMAC) Final() []byte { return h.h.Sum(nil) }

// Sum is a one-shot convenience wrapper: NewHMAC(key).Update(data).Final().
func Sum(key, data []byte) []byte {
	h := NewHMAC(key)
	h.Update(data)
	return h.Final()
}

// Equal compares two HMAC tags in constant time.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
