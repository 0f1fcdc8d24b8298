// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package subprocess

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame's payload. A helper that sends a
// larger frame has violated the protocol; the delegator responds by
// discarding the child rather than attempting to resynchronize.
const MaxFrameSize = 2 << 20 // 2 MiB

// WriteFrame writes payload to w prefixed with its little-endian
// uint32 length.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("subprocess: frame of %d bytes exceeds the %d byte limit", len(payload), MaxFrameSize)
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("subprocess: writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("subprocess: writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. A frame whose
// declared length exceeds MaxFrameSize is a protocol violation and is
// reported as an error without attempting to read or skip the
// oversized payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("subprocess: frame declares %d bytes, exceeding the %d byte limit", length, MaxFrameSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("subprocess: reading frame payload: %w", err)
	}
	return payload, nil
}
