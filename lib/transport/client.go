// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/fieldglass/fieldglass/lib/cipher"
	"github.com/fieldglass/fieldglass/lib/codec"
	"github.com/fieldglass/fieldglass/lib/netutil"
	"github.com/fieldglass/fieldglass/lib/wire"
)

// requestTimeout bounds a single discovery or envelope HTTP exchange.
const requestTimeout = 30 * time.Second

// httpClient builds an *http.Client routed through proxyURL, or a
// direct client if proxyURL is empty.
func httpClient(proxyURL string) (*http.Client, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("transport: parsing proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}
	return &http.Client{Transport: transport, Timeout: requestTimeout}, nil
}

// serverCertURL derives the well-known server.pem location from a
// control URL: the directory containing the control URL's path, with
// server.pem appended.
func serverCertURL(controlURL string) (string, error) {
	parsed, err := url.Parse(controlURL)
	if err != nil {
		return "", fmt.Errorf("transport: parsing control url: %w", err)
	}
	dir := strings.TrimSuffix(path.Dir(parsed.Path), "/")
	parsed.Path = dir + "/server.pem"
	return parsed.String(), nil
}

// FetchServerCertificate retrieves the server certificate published
// alongside controlURL, routed through proxyURL if non-empty, and
// verifies it chains to caCert. It returns the parsed certificate
// only on a clean 200 response whose body parses as a certificate and
// verifies -- any other outcome is an error the caller treats as "try
// the next control URL / proxy pair."
func FetchServerCertificate(ctx context.Context, controlURL, proxyURL string, caCert *cipher.Certificate) (*cipher.Certificate, error) {
	certURL, err := serverCertURL(controlURL)
	if err != nil {
		return nil, err
	}

	client, err := httpClient(proxyURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: fetching server certificate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: server certificate fetch returned HTTP %d", resp.StatusCode)
	}

	body, err := netutil.ReadResponse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: reading server certificate response: %w", err)
	}
	if !bytes.Contains(body, []byte("BEGIN CERTIFICATE")) {
		return nil, fmt.Errorf("transport: response does not contain a PEM certificate")
	}

	cert, err := cipher.CertificateFromPEM(body)
	if err != nil {
		return nil, fmt.Errorf("transport: parsing server certificate: %w", err)
	}
	if err := cert.VerifyPool(caCert.Pool()); err != nil {
		return nil, fmt.Errorf("transport: server certificate does not chain to the configured CA: %w", err)
	}
	return cert, nil
}

// PostResult is the outcome of PostEnvelope: the HTTP status code the
// server responded with, and -- only meaningful when Status is 200 --
// the decoded response envelope.
type PostResult struct {
	Status   int
	Envelope *wire.Envelope
}

// PostEnvelope POSTs envelope to controlURL (with "?api=3" appended),
// routed through proxyURL if non-empty, and reports the response's
// HTTP status. A 200 response body is decoded as a wire.Envelope; any
// other status leaves Envelope nil. Errors here are transport-level
// failures (DNS, connection refused, malformed response body), not
// protocol-level rejections -- those surface as a non-200 PostResult.
func PostEnvelope(ctx context.Context, controlURL, proxyURL string, envelope *wire.Envelope) (PostResult, error) {
	encoded, err := codec.Marshal(envelope)
	if err != nil {
		return PostResult{}, fmt.Errorf("transport: encoding envelope: %w", err)
	}

	client, err := httpClient(proxyURL)
	if err != nil {
		return PostResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, controlURL+"?api=3", bytes.NewReader(encoded))
	if err != nil {
		return PostResult{}, fmt.Errorf("transport: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		return PostResult{}, fmt.Errorf("transport: posting envelope: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		netutil.ErrorBody(resp.Body)
		return PostResult{Status: resp.StatusCode}, nil
	}

	body, err := netutil.ReadResponse(resp.Body)
	if err != nil {
		return PostResult{}, fmt.Errorf("transport: reading envelope response: %w", err)
	}

	var respEnvelope wire.Envelope
	if err := codec.Unmarshal(body, &respEnvelope); err != nil {
		return PostResult{}, fmt.Errorf("transport: decoding envelope response: %w", err)
	}
	return PostResult{Status: resp.StatusCode, Envelope: &respEnvelope}, nil
}
