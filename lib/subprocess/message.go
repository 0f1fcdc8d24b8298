// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package subprocess

import "github.com/fieldglass/fieldglass/lib/codec"

// Request is one call delegated to the helper process.
type Request struct {
	ID     uint64 `cbor:"id"`
	Action string `cbor:"action"`
	Args   []byte `cbor:"args"`
}

// Response is the helper's reply to a Request with a matching ID.
// Exactly one of Result or Error is meaningful.
type Response struct {
	ID     uint64 `cbor:"id"`
	Result []byte `cbor:"result"`
	Error  string `cbor:"error"`
}

func encodeRequest(r Request) ([]byte, error) { return codec.Marshal(r) }

func decodeRequest(data []byte) (Request, error) {
	var r Request
	err := codec.Unmarshal(data, &r)
	return r, err
}

func encodeResponse(r Response) ([]byte, error) { return codec.Marshal(r) }

func decodeResponse(data []byte) (Response, error) {
	var r Response
	err := codec.Unmarshal(data, &r)
	return r, err
}
