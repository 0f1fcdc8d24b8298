// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package clientconfig

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fieldglass/fieldglass/lib/atomicfile"
	"github.com/fieldglass/fieldglass/lib/cipher"
	"github.com/fieldglass/fieldglass/lib/sealed"
	"github.com/fieldglass/fieldglass/lib/secret"
)

// SubprocessSettings configures the helper executable the subprocess
// delegator spawns to carry out actions the agent process does not
// perform directly.
type SubprocessSettings struct {
	Filename string   `yaml:"filename"`
	Argv     []string `yaml:"argv"`
	Env      []string `yaml:"env"`
}

// fileData is the shape of both the base file and the writeback
// file. The writeback file only ever populates ClientPrivateKeyPEM
// and LastServerCertSerialNumber; every other field is read from the
// base file alone.
type fileData struct {
	ControlURLs                []string           `yaml:"control_url"`
	ProxyServers               []string           `yaml:"proxy_server"`
	CACertPEM                  string             `yaml:"ca_cert_pem"`
	ClientPrivateKeyPEM        string             `yaml:"client_private_key_pem"`
	WritebackFilename          string             `yaml:"writeback_filename"`
	LastServerCertSerialNumber string             `yaml:"last_server_cert_serial_number"`
	TemporaryDirectory         string             `yaml:"temporary_directory"`
	SubprocessConfig           SubprocessSettings `yaml:"subprocess_config"`

	// SealedBundle is a base64-encoded age ciphertext (see lib/sealed)
	// of a JSON-encoded sealedBundle: a pre-provisioned client private
	// key and CA certificate an operator distributes encrypted to the
	// host's own age identity, so the plaintext identity never touches
	// disk until the host that owns SealedIdentityPEM decrypts it.
	SealedBundle string `yaml:"sealed_bundle"`

	// SealedIdentityPEM is the age private key (AGE-SECRET-KEY-1...
	// format, despite the PEM-suggestive name kept for symmetry with
	// ClientPrivateKeyPEM) used to decrypt SealedBundle.
	SealedIdentityPEM string `yaml:"sealed_identity"`
}

// sealedBundle is the JSON structure a SealedBundle ciphertext decrypts
// to: the initial client identity and trust root, used only to fill in
// whichever of ClientPrivateKeyPEM/CACertPEM the base file left empty.
type sealedBundle struct {
	ClientPrivateKeyPEM string `json:"client_private_key_pem"`
	CACertPEM           string `json:"ca_cert_pem"`
}

// Config is the agent's loaded configuration. Methods are safe for
// concurrent use; the connection loop, the telemetry sampler, and the
// subprocess delegator all read it from separate goroutines, and
// [Config.ResetKey] / [Config.CheckUpdateServerSerial] mutate it in
// response to enrollment and discovery events.
type Config struct {
	mu sync.Mutex

	basePath      string
	writebackPath string
	data          fileData

	key      *cipher.RSAKey
	caCert   *cipher.Certificate
	clientID string
}

// Load reads the base configuration file at path, layers the
// writeback file named by its writeback_filename field (if set and
// present) on top, and validates the result: at least one control
// URL, a parseable CA certificate. If no private key is available
// from either file, Load generates one and persists it to the
// writeback file -- the normal bootstrap path for a freshly deployed
// agent.
func Load(path string) (*Config, error) {
	base, err := readFileData(path)
	if err != nil {
		return nil, fmt.Errorf("clientconfig: loading %s: %w", path, err)
	}

	c := &Config{basePath: path, writebackPath: base.WritebackFilename, data: base}

	if c.writebackPath != "" {
		overlay, err := readFileData(c.writebackPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("clientconfig: loading writeback file %s: %w", c.writebackPath, err)
		}
		if err == nil {
			if overlay.ClientPrivateKeyPEM != "" {
				c.data.ClientPrivateKeyPEM = overlay.ClientPrivateKeyPEM
			}
			if overlay.LastServerCertSerialNumber != "" {
				c.data.LastServerCertSerialNumber = overlay.LastServerCertSerialNumber
			}
		}
	}

	if c.data.SealedBundle != "" && c.data.SealedIdentityPEM != "" &&
		(c.data.ClientPrivateKeyPEM == "" || c.data.CACertPEM == "") {
		if err := c.applySealedBundleLocked(); err != nil {
			return nil, fmt.Errorf("clientconfig: unsealing enrollment bundle: %w", err)
		}
	}

	if err := c.validateLocked(); err != nil {
		return nil, err
	}

	if c.data.ClientPrivateKeyPEM == "" {
		if err := c.resetKeyLocked(); err != nil {
			return nil, fmt.Errorf("clientconfig: generating initial client identity: %w", err)
		}
	} else if err := c.parseKeyLocked(); err != nil {
		return nil, err
	}

	caCert, err := cipher.CertificateFromPEM([]byte(c.data.CACertPEM))
	if err != nil {
		return nil, fmt.Errorf("clientconfig: parsing ca_cert_pem: %w", err)
	}
	c.caCert = caCert

	return c, nil
}

func readFileData(path string) (fileData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileData{}, err
	}
	var data fileData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return fileData{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return data, nil
}

func (c *Config) validateLocked() error {
	if len(c.data.ControlURLs) == 0 {
		return fmt.Errorf("clientconfig: control_url must name at least one control server")
	}
	if c.data.CACertPEM == "" {
		return fmt.Errorf("clientconfig: ca_cert_pem is required")
	}
	return nil
}

// applySealedBundleLocked decrypts SealedBundle with SealedIdentityPEM
// and fills in whichever of ClientPrivateKeyPEM/CACertPEM the base
// file left empty -- the bootstrap path for a host provisioned with
// an encrypted enrollment bundle rather than a plaintext identity.
func (c *Config) applySealedBundleLocked() error {
	identity, err := secret.NewFromBytes([]byte(c.data.SealedIdentityPEM))
	if err != nil {
		return fmt.Errorf("protecting sealed identity: %w", err)
	}
	defer identity.Close()

	plaintext, err := sealed.DecryptJSON(c.data.SealedBundle, identity)
	if err != nil {
		return fmt.Errorf("decrypting sealed bundle: %w", err)
	}
	defer plaintext.Close()

	var bundle sealedBundle
	if err := json.Unmarshal(plaintext.Bytes(), &bundle); err != nil {
		return fmt.Errorf("parsing sealed bundle: %w", err)
	}

	if c.data.ClientPrivateKeyPEM == "" {
		c.data.ClientPrivateKeyPEM = bundle.ClientPrivateKeyPEM
	}
	if c.data.CACertPEM == "" {
		c.data.CACertPEM = bundle.CACertPEM
	}
	return nil
}

func (c *Config) parseKeyLocked() error {
	key, err := cipher.RSAKeyFromPEM([]byte(c.data.ClientPrivateKeyPEM))
	if err != nil {
		return fmt.Errorf("clientconfig: parsing client_private_key_pem: %w", err)
	}
	c.key = key
	c.clientID = computeClientID(key)
	return nil
}

// computeClientID derives the wire client id from a key's public
// modulus: "C." followed by the lowercase hex of the first 8 bytes of
// the modulus's SHA-256 digest.
func computeClientID(key *cipher.RSAKey) string {
	digest := cipher.Hash(cipher.DigestSHA256, key.PublicKeyNMPI())
	return "C." + hex.EncodeToString(digest[:8])
}

// ControlURLs returns the configured control server URLs, in the
// order the connection loop should try them.
func (c *Config) ControlURLs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.data.ControlURLs...)
}

// ProxyServers returns the configured HTTP proxy servers. An empty
// slice means "try a direct connection"; the connection loop always
// additionally tries a direct connection regardless of this list.
func (c *Config) ProxyServers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.data.ProxyServers...)
}

// CACertificate returns the pinned CA certificate used to verify a
// discovered server certificate.
func (c *Config) CACertificate() *cipher.Certificate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caCert
}

// Key returns the client's current RSA identity.
func (c *Config) Key() *cipher.RSAKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// ClientID returns the client id derived from the current key.
func (c *Config) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// TemporaryDirectory returns the directory the agent should use for
// scratch files.
func (c *Config) TemporaryDirectory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.TemporaryDirectory
}

// Subprocess returns the configured subprocess helper settings.
func (c *Config) Subprocess() SubprocessSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.SubprocessConfig
}

// LastServerCertSerialNumber returns the highest server certificate
// serial number observed so far, or nil if none has been recorded.
func (c *Config) LastServerCertSerialNumber() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serialLocked()
}

func (c *Config) serialLocked() *big.Int {
	if c.data.LastServerCertSerialNumber == "" {
		return nil
	}
	n, ok := new(big.Int).SetString(c.data.LastServerCertSerialNumber, 16)
	if !ok {
		return nil
	}
	return n
}

// ResetKey generates a fresh 2048-bit RSA identity, recomputes the
// client id, and persists the new key to the writeback file.
func (c *Config) ResetKey() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetKeyLocked()
}

func (c *Config) resetKeyLocked() error {
	key, err := cipher.GenerateRSAKey()
	if err != nil {
		return fmt.Errorf("clientconfig: generating client key: %w", err)
	}
	c.key = key
	c.data.ClientPrivateKeyPEM = string(key.ToPEM())
	c.clientID = computeClientID(key)
	return c.writebackLocked()
}

// CheckUpdateServerSerial enforces that serial numbers observed from
// the control server only move forward. If n is less than the last
// recorded serial, it returns an error (the signal of a downgrade to
// a revoked certificate) and leaves state unchanged. If n is greater,
// it records n and persists it to the writeback file. If n equals the
// last recorded serial, it is a no-op.
func (c *Config) CheckUpdateServerSerial(n *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.serialLocked()
	if current != nil {
		switch current.Cmp(n) {
		case 0:
			return nil
		case 1:
			return fmt.Errorf("clientconfig: server certificate serial number %s is older than last-seen %s", n, current)
		}
	}

	c.data.LastServerCertSerialNumber = n.Text(16)
	return c.writebackLocked()
}

// writebackLocked persists ClientPrivateKeyPEM and
// LastServerCertSerialNumber to the writeback file, computed as a
// delta against a fresh read of the base file: a field already
// supplied there is omitted from the writeback file rather than
// duplicated. A Config constructed without a writeback filename
// silently skips persistence.
func (c *Config) writebackLocked() error {
	if c.writebackPath == "" {
		return nil
	}

	base, err := readFileData(c.basePath)
	if err != nil {
		base = fileData{}
	}

	var overlay fileData
	if c.data.ClientPrivateKeyPEM != base.ClientPrivateKeyPEM {
		overlay.ClientPrivateKeyPEM = c.data.ClientPrivateKeyPEM
	}
	if c.data.LastServerCertSerialNumber != base.LastServerCertSerialNumber {
		overlay.LastServerCertSerialNumber = c.data.LastServerCertSerialNumber
	}

	encoded, err := yaml.Marshal(overlay)
	if err != nil {
		return fmt.Errorf("clientconfig: encoding writeback file: %w", err)
	}
	if err := atomicfile.Write(c.writebackPath, encoded, 0600); err != nil {
		return fmt.Errorf("clientconfig: writing writeback file: %w", err)
	}
	return nil
}
