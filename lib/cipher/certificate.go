// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package cipher

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// Certificate wraps a parsed X.509 certificate for the operations the
// connection loop's discovery and enrollment paths need.
type Certificate struct {
	cert *x509.Certificate
}

// CertificateFromPEM parses a single PEM-encoded certificate.
func CertificateFromPEM(pemBytes []byte) (*Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("cipher: no CERTIFICATE PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cipher: parsing certificate: %w", err)
	}
	return &Certificate{cert: cert}, nil
}

// ToPEM serializes the certificate back to PEM.
func (c *Certificate) ToPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.cert.Raw})
}

// Verify checks that candidate was signed by this certificate's key,
// i.e. that this certificate is candidate's issuing CA.
func (c *Certificate) Verify(candidate *Certificate) error {
	if err := candidate.cert.CheckSignatureFrom(c.cert); err != nil {
		return fmt.Errorf("cipher: certificate verification failed: %w", err)
	}
	return nil
}

// VerifyPool checks that this certificate chains to a root in pool --
// the discovery-time pinning check the connection loop performs
// against the configured CA certificate.
func (c *Certificate) VerifyPool(pool *x509.CertPool) error {
	_, err := c.cert.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny}})
	if err != nil {
		return fmt.Errorf("cipher: certificate chain verification failed: %w", err)
	}
	return nil
}

// Pool returns a certificate pool containing only this certificate,
// for use as the Roots argument to another certificate's VerifyPool
// call -- the shape the connection loop's configured CA certificate
// needs to verify a server certificate fetched at discovery time.
func (c *Certificate) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(c.cert)
	return pool
}

// publicKey returns the certificate's RSA public key, or an error if
// the certificate does not carry one (the core only ever deals in RSA
// certificates).
func (c *Certificate) publicKey() (*rsa.PublicKey, error) {
	key, ok := c.cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cipher: certificate does not carry an RSA public key")
	}
	return key, nil
}

// Encrypt performs PKCS#1 OAEP encryption of plaintext under this
// certificate's public key. plaintext may be at most
// keysize - 2*hashLen - 2 bytes, matching the OAEP constraint.
func (c *Certificate) Encrypt(plaintext []byte) ([]byte, error) {
	publicKey, err := c.publicKey()
	if err != nil {
		return nil, err
	}
	ciphertext, err := rsa.EncryptOAEP(OAEPHash(), rand.Reader, publicKey, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("cipher: OAEP encrypt: %w", err)
	}
	return ciphertext, nil
}

// SerialNumber returns the certificate's serial number.
func (c *Certificate) SerialNumber() *big.Int {
	return c.cert.SerialNumber
}

// VerifySHA256 verifies signature against the SHA-256 digest of data
// using this certificate's public key (PKCS#1 v1.5).
func (c *Certificate) VerifySHA256(data, signature []byte) error {
	publicKey, err := c.publicKey()
	if err != nil {
		return err
	}
	digest := Hash(DigestSHA256, data)
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest, signature); err != nil {
		return fmt.Errorf("cipher: signature verification failed: %w", err)
	}
	return nil
}

// Subject returns the certificate's subject common name.
func (c *Certificate) Subject() string {
	return c.cert.Subject.CommonName
}

// SelfSignedCertificate wraps key's public half in a self-signed X.509
// certificate with the given subject common name, valid for ten
// years. Used to bootstrap a test CA or a standalone server identity
// where no external CA is available.
func SelfSignedCertificate(key *RSAKey, commonName string) (*Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("cipher: generating serial number: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.PublicKey(), key.private)
	if err != nil {
		return nil, fmt.Errorf("cipher: creating self-signed certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("cipher: parsing self-signed certificate: %w", err)
	}
	return &Certificate{cert: cert}, nil
}

// BuildCSR generates a PKCS#10 certificate signing request for key,
// with subject common name commonName, signed with SHA-1 (matching
// the wire contract in use). Returns the PEM-encoded CSR.
func BuildCSR(key *RSAKey, commonName string) ([]byte, error) {
	template := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: commonName},
		SignatureAlgorithm: x509.SHA1WithRSA,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, key.private)
	if err != nil {
		return nil, fmt.Errorf("cipher: creating CSR: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}
