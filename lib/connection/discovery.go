// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"

	"github.com/fieldglass/fieldglass/lib/session"
)

// ensureConnection returns true if a connection already exists or a
// new one was just established. It iterates the Cartesian product of
// configured control URLs and proxy servers (plus a trailing direct
// attempt), stopping at the first pair that yields a certificate
// chaining to the configured CA. On exhaustion it sleeps briefly and
// returns false so the caller retries on the next cycle.
func (l *Loop) ensureConnection(ctx context.Context) bool {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		return true
	}

	key := l.cfg.Key()
	clientID := l.cfg.ClientID()
	ca := l.cfg.CACertificate()

	proxies := append(append([]string{}, l.cfg.ProxyServers()...), "")
	for _, controlURL := range l.cfg.ControlURLs() {
		for _, proxy := range proxies {
			serverCert, err := l.discover(ctx, controlURL, proxy, ca)
			if err != nil {
				continue
			}
			if err := l.cfg.CheckUpdateServerSerial(serverCert.SerialNumber()); err != nil {
				continue
			}
			sess, err := session.New(clientID, key, serverCert)
			if err != nil {
				continue
			}
			l.mu.Lock()
			l.conn = &connectionState{
				controlURL: controlURL,
				proxy:      proxy,
				session:    sess,
				ownKey:     key,
				serverCert: serverCert,
			}
			l.mu.Unlock()
			return true
		}
	}

	l.clk.Sleep(discoveryRetryDelay)
	return false
}
