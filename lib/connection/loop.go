// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/fieldglass/fieldglass/lib/cipher"
	"github.com/fieldglass/fieldglass/lib/clientconfig"
	"github.com/fieldglass/fieldglass/lib/clock"
	"github.com/fieldglass/fieldglass/lib/codec"
	"github.com/fieldglass/fieldglass/lib/queue"
	"github.com/fieldglass/fieldglass/lib/session"
	"github.com/fieldglass/fieldglass/lib/transport"
	"github.com/fieldglass/fieldglass/lib/wire"
)

// dequeueMaxCount and dequeueMaxBytes bound a single outbox drain.
const (
	dequeueMaxCount = 1000
	dequeueMaxBytes = 1_000_000
)

// backoffBase, backoffFactor, and backoffCap parameterize the
// exponential back-off applied between successful cycles: delay =
// min(backoffCap, backoffBase * backoffFactor^noActivityCount).
const (
	backoffBase   = 200 * time.Millisecond
	backoffFactor = 1.05
	backoffCap    = 10 * time.Minute
)

// failedCycleDelay is the fixed delay used after a cycle that failed
// for any reason, in place of the exponential back-off.
const failedCycleDelay = 5 * time.Second

// enrollmentRetryInterval bounds how often a new CSR is pushed while
// the server keeps responding 406.
const enrollmentRetryInterval = 10 * time.Minute

// discoveryRetryDelay is how long Run sleeps after exhausting the
// control-url/proxy Cartesian product without finding a reachable,
// pinnable server.
const discoveryRetryDelay = time.Second

// AdmissionController paces outbound batches. Satisfied by
// *admission.Controller; an interface here lets tests supply a fake.
type AdmissionController interface {
	WaitToSend(estimatedBytes int) bool
}

// EnrolledNotifier is told once the loop completes its first
// successful exchange with the server. Satisfied by
// *telemetry.Sampler.
type EnrolledNotifier interface {
	SetEnrolled()
}

// discoverFunc and postFunc abstract the transport package's HTTP
// calls so tests can drive the loop without a real network.
type discoverFunc func(ctx context.Context, controlURL, proxy string, ca *cipher.Certificate) (*cipher.Certificate, error)
type postFunc func(ctx context.Context, controlURL, proxy string, envelope *wire.Envelope) (transport.PostResult, error)

// connectionState caches everything the loop needs once a server has
// been discovered and a session negotiated, so subsequent cycles skip
// discovery entirely.
type connectionState struct {
	controlURL string
	proxy      string
	session    *session.Session
	ownKey     *cipher.RSAKey
	serverCert *cipher.Certificate
}

// Loop drives the outbound/inbound traffic cycle described in the
// package doc.
type Loop struct {
	cfg    *clientconfig.Config
	outbox *queue.Queue
	inbox  *queue.Queue
	clk    clock.Clock
	nonces *session.NonceGenerator

	admission AdmissionController
	notifier  EnrolledNotifier

	discover discoverFunc
	post     postFunc

	mu                 sync.Mutex
	conn               *connectionState
	lastEnrollmentTime time.Time
	noActivityCount    int
	toSend             []wire.Message
	lastCycleFailed    bool
	everEnrolled       bool
}

// New returns a Loop reading from outbox, delivering decoded requests
// into inbox, and reporting resource usage through notifier once
// enrolled. notifier may be nil to disable telemetry gating.
func New(cfg *clientconfig.Config, outbox, inbox *queue.Queue, clk clock.Clock, admission AdmissionController, notifier EnrolledNotifier) *Loop {
	return &Loop{
		cfg:       cfg,
		outbox:    outbox,
		inbox:     inbox,
		clk:       clk,
		nonces:    session.NewNonceGenerator(clk),
		admission: admission,
		notifier:  notifier,
		discover:  transport.FetchServerCertificate,
		post:      transport.PostEnvelope,
	}
}

// Run drives the cycle forever until stop is closed.
func (l *Loop) Run(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		l.runCycle(ctx)
	}
}

// runCycle performs one discovery-if-needed, pace, send, decode
// round, then sleeps the appropriate back-off before returning.
func (l *Loop) runCycle(ctx context.Context) {
	delay := l.chooseDelay()
	l.clk.Sleep(delay)

	if !l.ensureConnection(ctx) {
		l.setCycleFailed(true)
		return
	}

	failed := l.exchangeOnce(ctx)
	l.setCycleFailed(failed)
}

// chooseDelay implements the pre-POST delay rule: a fixed 5s after a
// failed cycle, otherwise exponential back-off on no_activity_count.
func (l *Loop) chooseDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastCycleFailed {
		return failedCycleDelay
	}
	scaled := float64(backoffBase) * math.Pow(backoffFactor, float64(l.noActivityCount))
	if scaled > float64(backoffCap) {
		return backoffCap
	}
	return time.Duration(scaled)
}

func (l *Loop) setCycleFailed(failed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastCycleFailed = failed
}

// exchangeOnce fills to_send if needed, paces it past the admission
// controller, posts it, and handles the response. Returns true if the
// cycle should be treated as failed for back-off purposes.
func (l *Loop) exchangeOnce(ctx context.Context) bool {
	l.mu.Lock()
	conn := l.conn
	if len(l.toSend) == 0 {
		batch, err := l.outbox.Dequeue(dequeueMaxCount, dequeueMaxBytes, false)
		if err == nil {
			l.toSend = batch
		}
	}
	toSend := l.toSend
	l.mu.Unlock()

	if conn == nil {
		return true
	}

	if l.admission != nil {
		estimated := estimateBytes(toSend)
		if !l.admission.WaitToSend(estimated) {
			l.mu.Lock()
			l.toSend = nil
			l.mu.Unlock()
			return true
		}
	}

	nonce := l.nonces.Next()
	envelope, err := conn.session.Encode(toSend, nonce)
	if err != nil {
		slog.Warn("connection: encoding outbound envelope failed", "error", err)
		return true
	}

	result, err := l.post(ctx, conn.controlURL, conn.proxy, envelope)
	if err != nil {
		slog.Warn("connection: posting envelope failed", "error", err)
		return true
	}

	switch result.Status {
	case 406:
		l.handleEnrollmentRequested()
		return true
	case 200:
		return l.handleSuccessResponse(result, nonce, len(toSend) > 0)
	default:
		slog.Warn("connection: unexpected response status", "status", result.Status)
		return true
	}
}

// handleEnrollmentRequested pushes a fresh CSR to the outbox as a
// priority enrollment message, at most once per
// enrollmentRetryInterval.
func (l *Loop) handleEnrollmentRequested() {
	l.mu.Lock()
	now := l.clk.Now()
	if now.Sub(l.lastEnrollmentTime) < enrollmentRetryInterval && !l.lastEnrollmentTime.IsZero() {
		l.mu.Unlock()
		return
	}
	l.lastEnrollmentTime = now
	l.mu.Unlock()

	key := l.cfg.Key()
	csrPEM, err := cipher.BuildCSR(key, l.cfg.ClientID())
	if err != nil {
		slog.Warn("connection: building enrollment CSR failed", "error", err)
		return
	}
	cert := wire.Certificate{Type: wire.CertificateTypeCSR, PEM: string(csrPEM)}
	payload, err := codec.Marshal(cert)
	if err != nil {
		slog.Warn("connection: encoding enrollment CSR failed", "error", err)
		return
	}
	l.outbox.EnqueuePriority(wire.Message{
		SessionID: wire.EnrollmentSessionID,
		Kind:      wire.TypeMessage,
		ArgsType:  wire.EnrollmentArgsType,
		Args:      payload,
		Priority:  wire.PriorityHigh,
	})
}

// handleSuccessResponse decodes a 200 response and delivers its
// messages to the inbox. Returns true (treat as failed) if decoding
// fails, forcing the connection to be re-established next cycle.
func (l *Loop) handleSuccessResponse(result transport.PostResult, nonce int64, sentAny bool) bool {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	messages, err := conn.session.Decode(result.Envelope, nonce)
	if err != nil {
		slog.Warn("connection: decoding response envelope failed", "error", err)
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		return true
	}

	for _, m := range messages {
		if err := l.inbox.Enqueue(m); err != nil {
			slog.Warn("connection: delivering inbound message failed", "error", err)
			break
		}
	}

	l.mu.Lock()
	l.toSend = nil
	movedAny := sentAny || len(messages) > 0
	if movedAny {
		l.noActivityCount = 0
	} else {
		l.noActivityCount++
	}
	firstEnrollment := !l.everEnrolled
	l.everEnrolled = true
	l.mu.Unlock()

	if firstEnrollment && l.notifier != nil {
		l.notifier.SetEnrolled()
	}
	return false
}

// estimateBytes sums a batch's serialized size and pads it the way
// the admission controller expects, accounting for HTTP overhead.
func estimateBytes(messages []wire.Message) int {
	total := 0
	for _, m := range messages {
		total += m.Size()
	}
	return int(float64(total) * 1.20)
}

