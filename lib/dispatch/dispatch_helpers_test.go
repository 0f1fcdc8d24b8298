// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"testing"

	"github.com/fieldglass/fieldglass/lib/codec"
	"github.com/fieldglass/fieldglass/lib/wire"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := codec.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

func unmarshalStatus(t *testing.T, message wire.Message, dest *wire.Status) error {
	t.Helper()
	return codec.Unmarshal(message.Args, dest)
}
