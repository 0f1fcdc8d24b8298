// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package cipher

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// RSAKeySize is the modulus size the core generates and accepts. All
// client and CA keys are 2048-bit with public exponent 65537, which is
// what crypto/rsa.GenerateKey always uses.
const RSAKeySize = 2048

// OAEPHash is the hash function used for RSA-OAEP encryption and
// decryption throughout the envelope protocol (cipher properties).
var OAEPHash = sha256.New

// RSAKey wraps an RSA private key (and its embedded public half) for
// the operations the core needs: signing, OAEP decryption, and PEM
// round-tripping.
type RSAKey struct {
	private *rsa.PrivateKey
}

// GenerateRSAKey creates a fresh 2048-bit RSA key pair, e = 65537.
func GenerateRSAKey() (*RSAKey, error) {
	private, err := rsa.GenerateKey(rand.Reader, RSAKeySize)
	if err != nil {
		return nil, fmt.Errorf("cipher: generating RSA key: %w", err)
	}
	return &RSAKey{private: private}, nil
}

// RSAKeyFromPEM parses a PKCS#1 or PKCS#8 PEM-encoded RSA private key.
func RSAKeyFromPEM(pemBytes []byte) (*RSAKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("cipher: no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &RSAKey{private: key}, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cipher: parsing RSA private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("cipher: PEM block does not contain an RSA key")
	}
	return &RSAKey{private: rsaKey}, nil
}

// ToPEM serializes the key as a PKCS#1 PEM block.
func (k *RSAKey) ToPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(k.private),
	})
}

// PublicKey returns the key's public half.
func (k *RSAKey) PublicKey() *rsa.PublicKey {
	return &k.private.PublicKey
}

// PublicKeyNMPI returns the public modulus N as a big-endian byte
// string (no leading zero byte, no length prefix). The client
// identifier is derived from this value; it is not used for anything
// else.
func (k *RSAKey) PublicKeyNMPI() []byte {
	return k.private.N.Bytes()
}

// SignSHA256 signs the SHA-256 digest of data with PKCS#1 v1.5.
func (k *RSAKey) SignSHA256(data []byte) ([]byte, error) {
	digest := Hash(DigestSHA256, data)
	signature, err := rsa.SignPKCS1v15(rand.Reader, k.private, crypto.SHA256, digest)
	if err != nil {
		return nil, fmt.Errorf("cipher: signing: %w", err)
	}
	return signature, nil
}

// Decrypt performs PKCS#1 OAEP decryption with this key.
func (k *RSAKey) Decrypt(ciphertext []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(OAEPHash(), rand.Reader, k.private, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cipher: OAEP decrypt: %w", err)
	}
	return plaintext, nil
}
