// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for
// admin-distributed secrets in the agent's configuration. It wraps
// filippo.io/age for the specific operations the agent needs: generate
// x25519 keypairs, encrypt to multiple recipients, and decrypt with a
// private key.
//
// lib/clientconfig uses it to open a sealed enrollment bundle: when
// the base configuration file carries a sealed bundle and its age
// identity, the bundle is decrypted at load and fills in a missing
// client private key or CA certificate. The writeback file is written
// in plain text and is not encrypted by this package.
//
// Callers pass plaintext []byte to [Encrypt] and receive a base64 string; [Decrypt] accepts a base64 string and returns
// plaintext. Private keys and decrypted plaintext are returned as
// [secret.Buffer] values backed by mmap memory outside the Go heap
// (locked against swap, excluded from core dumps, zeroed on Close).
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair in a secret.Buffer
//   - [Encrypt] / [EncryptJSON] -- encrypt to age public key recipients
//   - [Decrypt] / [DecryptJSON] -- decrypt with a secret.Buffer key
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
//
// Depends on lib/secret for secure memory allocation.
package sealed
