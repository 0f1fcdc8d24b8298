// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldglass/fieldglass/lib/cipher"
	"github.com/fieldglass/fieldglass/lib/codec"
	"github.com/fieldglass/fieldglass/lib/wire"
)

func testCA(t *testing.T) (*cipher.RSAKey, *cipher.Certificate) {
	t.Helper()
	key, err := cipher.GenerateRSAKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	cert, err := cipher.SelfSignedCertificate(key, "test-ca")
	if err != nil {
		t.Fatalf("self-signing: %v", err)
	}
	return key, cert
}

func TestServerCertURLDerivesFromControlPath(t *testing.T) {
	got, err := serverCertURL("https://example.com/control")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://example.com/server.pem" {
		t.Fatalf("got %q, want %q", got, "https://example.com/server.pem")
	}
}

func TestFetchServerCertificateAcceptsPinnedCertificate(t *testing.T) {
	_, caCert := testCA(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/server.pem" {
			http.NotFound(w, r)
			return
		}
		w.Write(caCert.ToPEM())
	}))
	defer server.Close()

	got, err := FetchServerCertificate(context.Background(), server.URL+"/control", "", caCert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Subject() != "test-ca" {
		t.Fatalf("got subject %q, want %q", got.Subject(), "test-ca")
	}
}

func TestFetchServerCertificateRejectsUnpinnedCertificate(t *testing.T) {
	_, caCert := testCA(t)
	_, otherCert := testCA(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(otherCert.ToPEM())
	}))
	defer server.Close()

	if _, err := FetchServerCertificate(context.Background(), server.URL+"/control", "", caCert); err == nil {
		t.Fatalf("expected an unpinned certificate to be rejected")
	}
}

func TestFetchServerCertificateRejectsNon200(t *testing.T) {
	_, caCert := testCA(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := FetchServerCertificate(context.Background(), server.URL+"/control", "", caCert); err == nil {
		t.Fatalf("expected a 404 response to be rejected")
	}
}

func TestPostEnvelopeRoundTrip(t *testing.T) {
	reply := &wire.Envelope{PacketIV: []byte("reply-iv"), APIVersion: wire.APIVersion}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var envelope wire.Envelope
		if err := codec.Unmarshal(body, &envelope); err != nil {
			t.Errorf("server: decoding request envelope: %v", err)
		}
		encoded, err := codec.Marshal(reply)
		if err != nil {
			t.Fatalf("server: encoding reply: %v", err)
		}
		w.Write(encoded)
	}))
	defer server.Close()

	result, err := PostEnvelope(context.Background(), server.URL, "", &wire.Envelope{PacketIV: []byte("request-iv"), APIVersion: wire.APIVersion})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != http.StatusOK {
		t.Fatalf("got status %d, want 200", result.Status)
	}
	if string(result.Envelope.PacketIV) != "reply-iv" {
		t.Fatalf("got packet iv %q, want %q", result.Envelope.PacketIV, "reply-iv")
	}
}

func TestPostEnvelopeReportsNon200Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNotAcceptable)
	}))
	defer server.Close()

	result, err := PostEnvelope(context.Background(), server.URL, "", &wire.Envelope{APIVersion: wire.APIVersion})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != http.StatusNotAcceptable {
		t.Fatalf("got status %d, want 406", result.Status)
	}
	if result.Envelope != nil {
		t.Fatalf("expected no envelope on a non-200 response")
	}
}
