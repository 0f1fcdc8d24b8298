// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fieldglass/fieldglass/lib/clock"
)

// InterfaceClass is the admission controller's bandwidth-relevant
// category for a network interface.
type InterfaceClass int

const (
	// ClassEthernet is a wired connection: fast and effectively
	// unmetered.
	ClassEthernet InterfaceClass = iota
	// ClassWLAN is a Wi-Fi connection: fast but shared and
	// sometimes metered.
	ClassWLAN
	// ClassMobile is a cellular connection: slow and commonly
	// metered, and the class the controller is most conservative
	// with.
	ClassMobile
)

func (c InterfaceClass) String() string {
	switch c {
	case ClassEthernet:
		return "ethernet"
	case ClassWLAN:
		return "wlan"
	default:
		return "mobile"
	}
}

// classifyInterfaceName maps a well-known interface name prefix to a
// class. Anything unrecognized is treated as mobile, the most
// conservative assumption.
func classifyInterfaceName(name string) InterfaceClass {
	switch {
	case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"), strings.HasPrefix(name, "em"):
		return ClassEthernet
	case strings.HasPrefix(name, "wlan"), strings.HasPrefix(name, "wl"):
		return ClassWLAN
	default:
		return ClassMobile
	}
}

func readOperState(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join("/sys/class/net", name, "operstate"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// detectActiveClass scans the system's network interfaces for the
// first one that is up and not a loopback, and classifies it. If
// none is found, it defaults to ClassMobile.
func detectActiveClass() InterfaceClass {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ClassMobile
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if state, err := readOperState(iface.Name); err == nil && state != "up" {
			continue
		}
		return classifyInterfaceName(iface.Name)
	}
	return ClassMobile
}

// Classifier reports the current network interface class, caching
// the result for a short window since classification touches the
// filesystem.
type Classifier struct {
	clk clock.Clock
	ttl time.Duration
	fn  func() InterfaceClass

	mu        sync.Mutex
	cached    InterfaceClass
	cachedAt  time.Time
	hasCached bool
}

// classificationCacheTTL is how long a classification result is
// reused before the controller re-checks the active interface.
const classificationCacheTTL = 5 * time.Second

// NewClassifier returns a Classifier backed by the system's network
// interfaces.
func NewClassifier(clk clock.Clock) *Classifier {
	return &Classifier{clk: clk, ttl: classificationCacheTTL, fn: detectActiveClass}
}

// CurrentClass returns the cached classification, refreshing it if
// the cache has expired.
func (c *Classifier) CurrentClass() InterfaceClass {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasCached && c.clk.Now().Sub(c.cachedAt) < c.ttl {
		return c.cached
	}
	c.cached = c.fn()
	c.cachedAt = c.clk.Now()
	c.hasCached = true
	return c.cached
}
