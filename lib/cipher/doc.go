// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package cipher is a thin, purpose-built wrapper over Go's standard
// crypto packages, offering exactly the primitives the secure session
// (lib/session) and the connection loop's enrollment path need:
// digests, HMAC-SHA1, RSA, X.509 certificate handling, CSR generation,
// AES-128-CBC with PKCS#7 padding, and a CSPRNG.
//
// The standard library is the underlying crypto library here -- there
// is no third-party substitute worth reaching for when crypto/rsa,
// crypto/x509, crypto/aes, and crypto/hmac already cover the full
// surface and are the most heavily audited implementations available
// in Go. Every decode/verify/decrypt function in this package returns
// a non-nil error on failure and never returns partial plaintext; it
// is the caller's job (lib/session) to treat any such error as "decode
// failed" without inspecting partial state.
package cipher
