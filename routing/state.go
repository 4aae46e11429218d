/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package routing holds the replicated configuration state shared by the
// master and every worker: HTTP/TLS fronts, backend instance pools and
// per-application policy. The master owns the authoritative copy; each
// worker holds an independently mutated replica updated only by command
// messages, per the single-writer-per-process invariant of the proxy's
// concurrency model.
package routing

import (
	"strconv"

	. "github.com/flowgate/flowgate/errors"
	"golang.org/x/net/idna"
)

// FrontKey identifies one routing entry: a listener port, a hostname (IDNA
// normalized, lower-case) and a path prefix. (Host, Path, Port) is unique
// within a ConfigState.
type FrontKey struct {
	Host string
	Path string
	Port int
}

// Policy is the set of per-application behaviours toggled by an admin
// order.
type Policy struct {
	StickySession    bool
	SendProxyProtocol bool
}

// BackendInstance is a concrete (ip, port) endpoint serving an
// application, carrying a liveness flag. The picker does not change this
// flag; it records connect failures in its own cool-off table.
type BackendInstance struct {
	IP    string
	Port  int
	Alive bool
}

// TLSFront is an HTTP front with an associated certificate/key file pair.
type TLSFront struct {
	ApplicationID string
	CertFile      string
	KeyFile       string
}

// ConfigState is the routing table described by the data model: HTTP
// fronts, TLS fronts, backend pools and application policies. It is not
// safe for concurrent mutation; the master's command server applies
// orders to its copy one at a time, and each worker mutates its own copy
// only from its command-handling goroutine.
type ConfigState struct {
	httpFronts map[FrontKey]string
	tlsFronts  map[FrontKey]TLSFront
	backends   map[string][]*BackendInstance
	apps       map[string]Policy
}

// NewConfigState returns an empty routing table.
func NewConfigState() *ConfigState {
	return &ConfigState{
		httpFronts: make(map[FrontKey]string),
		tlsFronts:  make(map[FrontKey]TLSFront),
		backends:   make(map[string][]*BackendInstance),
		apps:       make(map[string]Policy),
	}
}

// normalizeHost lower-cases and IDNA-normalizes a hostname so that
// case-only or punycode-equivalent variants resolve to the same front key.
// Hosts that IDNA normalization rejects fall back to a simple lower-case
// compare, which covers every hostname this proxy is expected to see.
func normalizeHost(host string) string {
	if n, err := idna.Lookup.ToASCII(host); err == nil {
		return n
	}
	out := make([]byte, len(host))
	for i := 0; i < len(host); i++ {
		c := host[i]
		if 'A' <= c && c <= 'Z' {
			c |= 0x20
		}
		out[i] = c
	}
	return string(out)
}

// AddHTTPFront declares (host, path, port) -> applicationID. Adding the
// same front with the same application id twice is a no-op. Adding it
// again with a different application id is rejected as a conflicting
// order; no state is changed.
func (c *ConfigState) AddHTTPFront(host, path string, port int, applicationID string) Error {
	key := FrontKey{Host: normalizeHost(host), Path: path, Port: port}
	if existing, ok := c.httpFronts[key]; ok {
		if existing == applicationID {
			return nil
		}
		return ErrorConflictingFront.Error(nil)
	}
	c.httpFronts[key] = applicationID
	return nil
}

// RemoveHTTPFront removes (host, path, port). Removing a non-existent
// entry is not an error.
func (c *ConfigState) RemoveHTTPFront(host, path string, port int) {
	delete(c.httpFronts, FrontKey{Host: normalizeHost(host), Path: path, Port: port})
}

// AddTLSFront declares a TLS front the same way AddHTTPFront does, plus
// the certificate/key file pair.
func (c *ConfigState) AddTLSFront(host, path string, port int, front TLSFront) Error {
	key := FrontKey{Host: normalizeHost(host), Path: path, Port: port}
	if existing, ok := c.tlsFronts[key]; ok {
		if existing == front {
			return nil
		}
		return ErrorConflictingFront.Error(nil)
	}
	c.tlsFronts[key] = front
	return nil
}

// RemoveTLSFront removes a TLS front; a missing entry is not an error.
func (c *ConfigState) RemoveTLSFront(host, path string, port int) {
	delete(c.tlsFronts, FrontKey{Host: normalizeHost(host), Path: path, Port: port})
}

// AddBackend appends (ip, port) to applicationID's backend list, marked
// alive. Adding the same (ip, port) twice is a no-op.
func (c *ConfigState) AddBackend(applicationID, ip string, port int) {
	for _, b := range c.backends[applicationID] {
		if b.IP == ip && b.Port == port {
			return
		}
	}
	c.backends[applicationID] = append(c.backends[applicationID], &BackendInstance{IP: ip, Port: port, Alive: true})
	if _, ok := c.apps[applicationID]; !ok {
		c.apps[applicationID] = Policy{}
	}
}

// RemoveBackend drops (ip, port) from applicationID's backend list; a
// missing entry is not an error.
func (c *ConfigState) RemoveBackend(applicationID, ip string, port int) {
	list := c.backends[applicationID]
	for i, b := range list {
		if b.IP == ip && b.Port == port {
			c.backends[applicationID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// SetApplication stores the policy for applicationID, creating it if
// absent.
func (c *ConfigState) SetApplication(applicationID string, policy Policy) {
	c.apps[applicationID] = policy
}

// Application returns applicationID's policy and whether it is known.
func (c *ConfigState) Application(applicationID string) (Policy, bool) {
	p, ok := c.apps[applicationID]
	return p, ok
}

// Backends returns the live backend slice for applicationID. The returned
// slice aliases internal storage and must not be mutated by the caller;
// use AddBackend/RemoveBackend.
func (c *ConfigState) Backends(applicationID string) []*BackendInstance {
	return c.backends[applicationID]
}

// LookupHTTP resolves (host, path, port) to an application id using the
// longest-matching path-prefix rule. It returns ok=false when no front
// matches at all; a matching front whose application id is orphaned (no
// backends map entry) still resolves, leaving the 503-vs-404 decision to
// the caller per the data model's invariant.
func (c *ConfigState) LookupHTTP(host, path string, port int) (applicationID string, ok bool) {
	return lookup(c.httpFronts, host, path, port)
}

// LookupTLS is LookupHTTP's TLS-front counterpart, also returning the
// certificate/key file pair recorded for the winning front.
func (c *ConfigState) LookupTLS(host, path string, port int) (front TLSFront, ok bool) {
	h := normalizeHost(host)
	bestLen := -1
	for key, f := range c.tlsFronts {
		if key.Host != h || key.Port != port {
			continue
		}
		if !hasPathPrefix(path, key.Path) {
			continue
		}
		if len(key.Path) > bestLen {
			bestLen = len(key.Path)
			front = f
			ok = true
		}
	}
	return
}

func lookup(fronts map[FrontKey]string, host, path string, port int) (applicationID string, ok bool) {
	h := normalizeHost(host)
	bestLen := -1
	for key, appID := range fronts {
		if key.Host != h || key.Port != port {
			continue
		}
		if !hasPathPrefix(path, key.Path) {
			continue
		}
		if len(key.Path) > bestLen {
			bestLen = len(key.Path)
			applicationID = appID
			ok = true
		}
	}
	return
}

// hasPathPrefix reports whether path begins with prefix, treating "/" as
// matching every path.
func hasPathPrefix(path, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}

// Clone returns a deep copy of the state, used both to hand a worker its
// initial replica and to round-trip through the upgrade payload.
func (c *ConfigState) Clone() *ConfigState {
	n := NewConfigState()
	for k, v := range c.httpFronts {
		n.httpFronts[k] = v
	}
	for k, v := range c.tlsFronts {
		n.tlsFronts[k] = v
	}
	for appID, list := range c.backends {
		cp := make([]*BackendInstance, len(list))
		for i, b := range list {
			nb := *b
			cp[i] = &nb
		}
		n.backends[appID] = cp
	}
	for k, v := range c.apps {
		n.apps[k] = v
	}
	return n
}

// Equal reports whether two states describe the same fronts, backends and
// policies, ignoring liveness flags and slice order. It backs the
// upgrade-round-trip testable property.
func (c *ConfigState) Equal(o *ConfigState) bool {
	if len(c.httpFronts) != len(o.httpFronts) || len(c.tlsFronts) != len(o.tlsFronts) || len(c.apps) != len(o.apps) || len(c.backends) != len(o.backends) {
		return false
	}
	for k, v := range c.httpFronts {
		if ov, ok := o.httpFronts[k]; !ok || ov != v {
			return false
		}
	}
	for k, v := range c.tlsFronts {
		if ov, ok := o.tlsFronts[k]; !ok || ov != v {
			return false
		}
	}
	for k, v := range c.apps {
		if ov, ok := o.apps[k]; !ok || ov != v {
			return false
		}
	}
	for appID, list := range c.backends {
		other := o.backends[appID]
		if len(list) != len(other) {
			return false
		}
		seen := make(map[string]bool, len(list))
		for _, b := range list {
			seen[b.IP+":"+strconv.Itoa(b.Port)] = true
		}
		for _, b := range other {
			if !seen[b.IP+":"+strconv.Itoa(b.Port)] {
				return false
			}
		}
	}
	return true
}
