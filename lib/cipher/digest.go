// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package cipher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
)

// DigestType selects an incremental digest algorithm.
type DigestType uint8

const (
	DigestMD5 DigestType = iota
	DigestSHA1
	DigestSHA256
)

// Digest is an incremental hash. Call Update any number of times, then
// Final once to get the digest bytes. A Digest is not safe for
// concurrent use.
type Digest struct {
	h hash.Hash
}

// NewDigest returns a fresh incremental digest for the given algorithm.
func NewDigest(t DigestType) *Digest {
	switch t {
	case DigestMD5:
		return &Digest{h: md5.New()}
	case DigestSHA1:
		return &Digest{h: sha1.New()}
	default:
		return &Digest{h: sha256.New()}
	}
}

// Update feeds more data into the digest.
func (d *Digest) Update(data []byte) { d.h.Write(data) }

// Final returns the digest of everything written so far.
func (d *Digest) Final() []byte { return d.h.Sum(nil) }

// Hash is a one-shot convenience wrapper: NewDigest(t).Update(data).Final().
func Hash(t DigestType, data []byte) []byte {
	d := NewDigest(t)
	d.Update(data)
	return d.Final()
}
