// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package cipher

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cipher: reading random bytes: %w", err)
	}
	return buf, nil
}

// RandUint64 returns a cryptographically secure random uint64.
func RandUint64() (uint64, error) {
	buf, err := RandBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf), nil
}
