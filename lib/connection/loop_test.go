// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fieldglass/fieldglass/lib/cipher"
	"github.com/fieldglass/fieldglass/lib/clientconfig"
	"github.com/fieldglass/fieldglass/lib/clock"
	"github.com/fieldglass/fieldglass/lib/queue"
	"github.com/fieldglass/fieldglass/lib/session"
	"github.com/fieldglass/fieldglass/lib/transport"
	"github.com/fieldglass/fieldglass/lib/wire"
)

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func testConfig(t *testing.T) *clientconfig.Config {
	t.Helper()
	dir := t.TempDir()

	caKey, err := cipher.GenerateRSAKey()
	if err != nil {
		t.Fatalf("generating CA key: %v", err)
	}
	caCert, err := cipher.SelfSignedCertificate(caKey, "test-ca")
	if err != nil {
		t.Fatalf("self-signing CA cert: %v", err)
	}

	contents := "control_url:\n  - https://control.example/control\n" + "ca_cert_pem: |\n"
	for _, line := range splitLines(string(caCert.ToPEM())) {
		contents += "  " + line + "\n"
	}
	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte(contents), 0644); err != nil {
		t.Fatalf("writing base file: %v", err)
	}

	cfg, err := clientconfig.Load(basePath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

// fakeAdmission always allows sends unless told to reject the next call.
type fakeAdmission struct {
	rejectNext bool
}

func (f *fakeAdmission) WaitToSend(int) bool {
	if f.rejectNext {
		f.rejectNext = false
		return false
	}
	return true
}

type fakeNotifier struct {
	mu       sync.Mutex
	enrolled bool
	calls    int
}

func (f *fakeNotifier) SetEnrolled() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrolled = true
	f.calls++
}

// mustClientCertificate wraps the client's own key in a throwaway
// self-signed certificate purely so the test server side can build a
// Session addressed to it -- the loop under test never sees this
// certificate, only its own CA-signed peer does.
func mustClientCertificate(t *testing.T, cfg *clientconfig.Config) *cipher.Certificate {
	t.Helper()
	cert, err := cipher.SelfSignedCertificate(cfg.Key(), cfg.ClientID())
	if err != nil {
		t.Fatalf("self-signing client certificate: %v", err)
	}
	return cert
}

func mustServerIdentity(t *testing.T) (*cipher.RSAKey, *cipher.Certificate) {
	t.Helper()
	key, err := cipher.GenerateRSAKey()
	if err != nil {
		t.Fatalf("generating server key: %v", err)
	}
	cert, err := cipher.SelfSignedCertificate(key, "control.example")
	if err != nil {
		t.Fatalf("self-signing server cert: %v", err)
	}
	return key, cert
}

// TestRunCycleEstablishesConnectionAndDeliversInbound drives discovery
// and a single exchange directly (bypassing runCycle's pre-POST sleep,
// which would otherwise block forever on a fake clock nobody
// advances). The test server's session is built the same way
// session_test.go's sessionPair builds its two ends: a Session
// addressed to the client's certificate both decodes the client's
// request and encodes the reply the client's own Session expects.
func TestRunCycleEstablishesConnectionAndDeliversInbound(t *testing.T) {
	cfg := testConfig(t)
	outbox := queue.New(100, 1_000_000)
	inbox := queue.New(100, 1_000_000)
	clk := clock.Fake(time.Unix(1_700_000_000, 0))

	serverKey, serverCert := mustServerIdentity(t)
	clientCert := mustClientCertificate(t, cfg)
	serverSession, err := session.New("server", serverKey, clientCert)
	if err != nil {
		t.Fatalf("building server-side session: %v", err)
	}

	l := New(cfg, outbox, inbox, clk, &fakeAdmission{}, &fakeNotifier{})
	l.discover = func(ctx context.Context, controlURL, proxy string, ca *cipher.Certificate) (*cipher.Certificate, error) {
		return serverCert, nil
	}

	// Mirrors l.nonces: same fake clock, same call order, so each call
	// here returns exactly the nonce the loop's own generator produced
	// for the matching exchangeOnce call.
	nonceGen := session.NewNonceGenerator(clk)

	pushed := wire.Message{SessionID: "F:Test", Kind: wire.TypeMessage, Name: "Ping"}
	l.post = func(ctx context.Context, controlURL, proxy string, envelope *wire.Envelope) (transport.PostResult, error) {
		nonce := nonceGen.Next()
		if _, err := serverSession.Decode(envelope, nonce); err != nil {
			t.Fatalf("server: decoding client envelope: %v", err)
		}
		reply, err := serverSession.Encode([]wire.Message{pushed}, nonce)
		if err != nil {
			t.Fatalf("server: encoding reply: %v", err)
		}
		return transport.PostResult{Status: 200, Envelope: reply}, nil
	}

	notifier := l.notifier.(*fakeNotifier)

	ctx := context.Background()
	if !l.ensureConnection(ctx) {
		t.Fatalf("expected ensureConnection to succeed")
	}
	if failed := l.exchangeOnce(ctx); failed {
		t.Fatalf("expected the exchange to succeed")
	}

	if l.conn == nil {
		t.Fatalf("expected a connection to be established")
	}
	if !notifier.enrolled {
		t.Fatalf("expected SetEnrolled to be called after a successful exchange")
	}
	if inbox.CurrentCount() == 0 {
		t.Fatalf("expected the server's pushed message to land in the inbox")
	}
}

func TestEstimateBytesPadsForOverhead(t *testing.T) {
	messages := []wire.Message{{Name: "Ping"}}
	base := messages[0].Size()
	got := estimateBytes(messages)
	if got <= base {
		t.Fatalf("expected padded estimate (%d) to exceed raw size (%d)", got, base)
	}
}

func TestChooseDelayUsesFixedDelayAfterFailure(t *testing.T) {
	cfg := testConfig(t)
	outbox := queue.New(100, 1_000_000)
	inbox := queue.New(100, 1_000_000)
	clk := clock.Fake(time.Unix(0, 0))
	l := New(cfg, outbox, inbox, clk, nil, nil)

	l.setCycleFailed(true)
	if got := l.chooseDelay(); got != failedCycleDelay {
		t.Fatalf("got delay %v, want %v", got, failedCycleDelay)
	}
}

func TestChooseDelayBacksOffWithNoActivity(t *testing.T) {
	cfg := testConfig(t)
	outbox := queue.New(100, 1_000_000)
	inbox := queue.New(100, 1_000_000)
	clk := clock.Fake(time.Unix(0, 0))
	l := New(cfg, outbox, inbox, clk, nil, nil)

	l.noActivityCount = 0
	zero := l.chooseDelay()
	l.noActivityCount = 50
	grown := l.chooseDelay()
	if grown <= zero {
		t.Fatalf("expected back-off to grow with no_activity_count: %v vs %v", grown, zero)
	}
	l.noActivityCount = 100000
	if capped := l.chooseDelay(); capped != backoffCap {
		t.Fatalf("expected back-off to cap at %v, got %v", backoffCap, capped)
	}
}
