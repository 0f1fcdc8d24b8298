// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/fieldglass/fieldglass/lib/cipher"
	"github.com/fieldglass/fieldglass/lib/codec"
	"github.com/fieldglass/fieldglass/lib/wire"
)

const sessionKeySize = 16

// Session holds the cryptographic state negotiated with one specific
// peer certificate, reused across many envelopes. One side's Session
// (constructed with its own private key and the other side's
// certificate) Encodes envelopes the peer can Decode with a Session
// constructed the other way around.
type Session struct {
	localID  string
	localKey *cipher.RSAKey
	peerCert *cipher.Certificate

	properties                wire.CipherProperties
	encryptedCipherProperties []byte
	encryptedCipherMetadata   []byte
}

// New constructs a Session addressed to peerCert: it generates a
// fresh session key, metadata IV, and HMAC key; RSA-OAEP-encrypts the
// resulting CipherProperties under peerCert's public key; signs the
// serialized CipherProperties with localKey; and AES-encrypts the
// signature plus localID under the fresh session key. The cached
// blobs are attached verbatim to every envelope Encode produces for
// the life of this Session.
func New(localID string, localKey *cipher.RSAKey, peerCert *cipher.Certificate) (*Session, error) {
	sessionKey, err := cipher.RandBytes(sessionKeySize)
	if err != nil {
		return nil, fmt.Errorf("session: generating session key: %w", err)
	}
	metadataIV, err := cipher.RandBytes(sessionKeySize)
	if err != nil {
		return nil, fmt.Errorf("session: generating metadata IV: %w", err)
	}
	hmacKey, err := cipher.RandBytes(sessionKeySize)
	if err != nil {
		return nil, fmt.Errorf("session: generating HMAC key: %w", err)
	}

	properties := wire.CipherProperties{
		CipherName: wire.CipherName,
		SessionKey: sessionKey,
		MetadataIV: metadataIV,
		HMACKey:    hmacKey,
		HMACType:   wire.HMACType,
	}
	propertiesBytes, err := codec.Marshal(properties)
	if err != nil {
		return nil, fmt.Errorf("session: serializing cipher properties: %w", err)
	}

	encryptedCipherProperties, err := peerCert.Encrypt(propertiesBytes)
	if err != nil {
		return nil, fmt.Errorf("session: encrypting cipher properties: %w", err)
	}

	signature, err := localKey.SignSHA256(propertiesBytes)
	if err != nil {
		return nil, fmt.Errorf("session: signing cipher properties: %w", err)
	}

	metadata := wire.CipherMetadata{Signature: signature, ClientID: localID}
	metadataBytes, err := codec.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("session: serializing cipher metadata: %w", err)
	}
	encryptedCipherMetadata, err := cipher.AESCBCEncrypt(sessionKey, metadataIV, metadataBytes)
	if err != nil {
		return nil, fmt.Errorf("session: encrypting cipher metadata: %w", err)
	}

	return &Session{
		localID:                   localID,
		localKey:                  localKey,
		peerCert:                  peerCert,
		properties:                properties,
		encryptedCipherProperties: encryptedCipherProperties,
		encryptedCipherMetadata:   encryptedCipherMetadata,
	}, nil
}

// Encode wraps messages and nonce into an envelope addressed to the
// peer this Session was constructed with. It picks whichever of the
// raw or zlib-deflated serialization of the message list is smaller.
func (s *Session) Encode(messages []wire.Message, nonce int64) (*wire.Envelope, error) {
	listBytes, err := codec.Marshal(wire.MessageList{Job: messages})
	if err != nil {
		return nil, fmt.Errorf("session: serializing message list: %w", err)
	}

	compression := wire.CompressionNone
	chosen := listBytes
	if deflated, err := deflate(listBytes); err == nil && len(deflated) < len(listBytes) {
		compression = wire.CompressionZlib
		chosen = deflated
	}

	signedList := wire.SignedMessageList{
		Timestamp:        nonce,
		Compression:      compression,
		MessageListBytes: chosen,
	}
	signedBytes, err := codec.Marshal(signedList)
	if err != nil {
		return nil, fmt.Errorf("session: serializing signed message list: %w", err)
	}

	packetIV, err := cipher.RandBytes(sessionKeySize)
	if err != nil {
		return nil, fmt.Errorf("session: generating packet IV: %w", err)
	}
	encrypted, err := cipher.AESCBCEncrypt(s.properties.SessionKey, packetIV, signedBytes)
	if err != nil {
		return nil, fmt.Errorf("session: encrypting payload: %w", err)
	}

	envelope := wire.Envelope{
		EncryptedCipherProperties: s.encryptedCipherProperties,
		EncryptedCipherMetadata:   s.encryptedCipherMetadata,
		PacketIV:                  packetIV,
		Encrypted:                 encrypted,
		APIVersion:                wire.APIVersion,
	}
	envelope.HMAC = cipher.Sum(s.properties.HMACKey, envelope.HMACInput())
	return &envelope, nil
}

// Decode verifies and decrypts an envelope received from the peer,
// returning the enclosed messages only if every check passes: RSA
// decryption of the cipher properties with this Session's own private
// key, the sender's signature over those properties, the full HMAC,
// AES decryption of the payload, and the nonce match. Any failure
// returns a non-nil error and no messages -- callers must treat a
// Decode error as "discard this response, no partial delivery."
func (s *Session) Decode(envelope *wire.Envelope, expectedNonce int64) ([]wire.Message, error) {
	propertiesBytes, err := s.localKey.Decrypt(envelope.EncryptedCipherProperties)
	if err != nil {
		return nil, fmt.Errorf("session: decrypting cipher properties: %w", err)
	}
	var properties wire.CipherProperties
	if err := codec.Unmarshal(propertiesBytes, &properties); err != nil {
		return nil, fmt.Errorf("session: parsing cipher properties: %w", err)
	}

	expectedHMAC := cipher.Sum(properties.HMACKey, envelope.HMACInput())
	if !cipher.Equal(expectedHMAC, envelope.HMAC) {
		return nil, fmt.Errorf("session: HMAC mismatch")
	}

	if err := s.authenticateSender(properties, propertiesBytes, envelope); err != nil {
		return nil, err
	}

	signedBytes, err := cipher.AESCBCDecrypt(properties.SessionKey, envelope.PacketIV, envelope.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("session: decrypting payload: %w", err)
	}
	var signedList wire.SignedMessageList
	if err := codec.Unmarshal(signedBytes, &signedList); err != nil {
		return nil, fmt.Errorf("session: parsing signed message list: %w", err)
	}

	if signedList.Timestamp != expectedNonce {
		return nil, fmt.Errorf("session: nonce mismatch: got %d, want %d", signedList.Timestamp, expectedNonce)
	}

	var rawList []byte
	switch signedList.Compression {
	case wire.CompressionNone:
		rawList = signedList.MessageListBytes
	case wire.CompressionZlib:
		rawList, err = inflate(signedList.MessageListBytes)
		if err != nil {
			return nil, fmt.Errorf("session: inflating message list: %w", err)
		}
	default:
		return nil, fmt.Errorf("session: unknown compression type %d", signedList.Compression)
	}

	var list wire.MessageList
	if err := codec.Unmarshal(rawList, &list); err != nil {
		return nil, fmt.Errorf("session: parsing message list: %w", err)
	}
	return list.Job, nil
}

// authenticateSender decrypts the envelope's cipher metadata with the
// freshly recovered session key and checks that the peer's signature
// over the cipher properties verifies against s.peerCert -- proving
// the envelope was actually produced by the party we pinned.
func (s *Session) authenticateSender(properties wire.CipherProperties, propertiesBytes []byte, envelope *wire.Envelope) error {
	metadataBytes, err := cipher.AESCBCDecrypt(properties.SessionKey, properties.MetadataIV, envelope.EncryptedCipherMetadata)
	if err != nil {
		return fmt.Errorf("session: decrypting cipher metadata: %w", err)
	}
	var metadata wire.CipherMetadata
	if err := codec.Unmarshal(metadataBytes, &metadata); err != nil {
		return fmt.Errorf("session: parsing cipher metadata: %w", err)
	}
	if err := s.peerCert.VerifySHA256(propertiesBytes, metadata.Signature); err != nil {
		return fmt.Errorf("session: sender signature verification: %w", err)
	}
	return nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := zlib.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
