// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// CipherName identifies the symmetric cipher a session uses. The core
// supports exactly one: 128-bit AES in CBC mode.
const CipherName = "aes_128_cbc"

// HMACType identifies the integrity scheme. The core supports exactly
// one: a full HMAC-SHA1 over the entire envelope.
const HMACType = "FULL_HMAC"

// CipherProperties is the per-session symmetric key state, generated
// fresh by the client when a SecureSession is constructed and
// RSA-OAEP-encrypted to the server's public key on every envelope.
type CipherProperties struct {
	CipherName string `cbor:"cipher_name"`
	SessionKey []byte `cbor:"session_key"` // 16 bytes
	MetadataIV []byte `cbor:"metadata_iv"` // 16 bytes
	HMACKey    []byte `cbor:"hmac_key"`    // 16 bytes
	HMACType   string `cbor:"hmac_type"`
}

// CipherMetadata is the plaintext that gets AES-CBC-encrypted under
// (SessionKey, MetadataIV) to produce an envelope's
// encrypted_cipher_metadata field. It lets the receiver recover the
// sender's identity and verify that the sender who generated
// CipherProperties is who they claim to be.
type CipherMetadata struct {
	// Signature is the client's RSA-PKCS#1 signature (over SHA-256) of
	// the serialized CipherProperties.
	Signature []byte `cbor:"signature"`
	// ClientID is the sender's client identifier, "C.<hex16>".
	ClientID string `cbor:"client_id"`
}

// Compression tags how the inner MessageList was serialized inside a
// SignedMessageList.
type Compression uint8

const (
	// CompressionNone means MessageListBytes is the raw CBOR encoding.
	CompressionNone Compression = iota
	// CompressionZlib means MessageListBytes is zlib-deflated.
	CompressionZlib
)

// SignedMessageList is the plaintext that gets AES-CBC-encrypted under
// (SessionKey, PacketIV) to produce an envelope's encrypted field.
type SignedMessageList struct {
	// Timestamp carries the nonce: a monotone microsecond value that
	// the server echoes back to prove freshness.
	Timestamp int64 `cbor:"timestamp"`

	// Compression indicates how MessageListBytes is encoded.
	Compression Compression `cbor:"compression"`

	// MessageListBytes is the serialized MessageList, optionally
	// zlib-deflated per Compression.
	MessageListBytes []byte `cbor:"message_list"`
}
