// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "encoding/binary"

// APIVersion is the fixed envelope version this core speaks. The
// server rejects any other value.
const APIVersion uint32 = 3

// Envelope is the outermost framing structure carrying one batch of
// messages over one HTTP exchange. Every field except APIVersion is
// either encrypted or an integrity tag; the plaintext Message values
// only exist momentarily inside lib/session, never on the wire.
type Envelope struct {
	// EncryptedCipherProperties is CipherProperties, RSA-OAEP-encrypted
	// under the recipient's public key.
	EncryptedCipherProperties []byte `cbor:"encrypted_cipher_properties"`

	// EncryptedCipherMetadata is CipherMetadata, AES-128-CBC-encrypted
	// under (session key, metadata IV).
	EncryptedCipherMetadata []byte `cbor:"encrypted_cipher_metadata"`

	// PacketIV is the random 16-byte IV used to encrypt Encrypted.
	PacketIV []byte `cbor:"packet_iv"`

	// Encrypted is a SignedMessageList, AES-128-CBC-encrypted under
	// (session key, PacketIV).
	Encrypted []byte `cbor:"encrypted"`

	// HMAC is HMAC-SHA1, computed with the cipher properties' HMAC key
	// over HMACInput(e).
	HMAC []byte `cbor:"hmac"`

	// APIVersion is always APIVersion (3); present on the wire so a
	// future protocol revision can be distinguished without guessing.
	APIVersion uint32 `cbor:"api_version"`
}

// HMACInput returns the byte sequence the envelope's HMAC is computed
// over: the encrypted payload, the encrypted cipher properties, the
// encrypted cipher metadata, the packet IV, and the API version as a
// little-endian uint32 -- in that fixed order. Both the encoder and
// the decoder must reproduce this exact concatenation for the HMAC
// check to mean anything.
func (e Envelope) HMACInput() []byte {
	var versionBytes [4]byte
	binary.LittleEndian.PutUint32(versionBytes[:], e.APIVersion)

	input := make([]byte, 0, len(e.Encrypted)+len(e.EncryptedCipherProperties)+len(e.EncryptedCipherMetadata)+len(e.PacketIV)+4)
	input = append(input, e.Encrypted...)
	input = append(input, e.EncryptedCipherProperties...)
	input = append(input, e.EncryptedCipherMetadata...)
	input = append(input, e.PacketIV...)
	input = append(input, versionBytes[:]...)
	return input
}
