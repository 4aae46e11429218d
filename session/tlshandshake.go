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

package session

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/flowgate/flowgate/metrics"
)

// tlsSubState is TlsHandshake's own tagged position, distinct from the
// Protocol-level ProtocolResult: a handshake in progress is still
// Continue at the Protocol level even though it has internally moved past
// Initial.
type tlsSubState int

const (
	tlsInitial tlsSubState = iota
	tlsHandshaking
	tlsEstablished
	tlsError
)

// TlsHandshake drives a *tls.Conn through its handshake using short read
// deadlines as the would-block signal: Go's tls.Conn.Handshake is safe to
// retry after a timeout, resuming from the internal transcript it already
// built, which is the moral equivalent of the mid-handshake "Streaming"
// value the design note describes storing and resuming.
type TlsHandshake struct {
	config *tls.Config
	next   func(*tls.Conn) Protocol

	sub   tlsSubState
	tconn *tls.Conn
	peek  *peekConn
	reg   *metrics.Registry
}

// NewTlsHandshake returns a variant that Accepts a TLS handshake using
// config and, on success, upgrades to whatever next returns for the
// established *tls.Conn (letting the caller swap s.Front to the TLS
// connection before constructing the Http variant).
func NewTlsHandshake(config *tls.Config, reg *metrics.Registry, next func(*tls.Conn) Protocol) *TlsHandshake {
	return &TlsHandshake{config: config, next: next, reg: reg}
}

func (t *TlsHandshake) Name() string { return "TlsHandshake" }

func (t *TlsHandshake) Next() Protocol {
	return t.next(t.tconn)
}

func (t *TlsHandshake) OnReadable(s *Session) (ProtocolResult, SessionResult) {
	if t.tconn == nil {
		t.peek = &peekConn{Conn: s.Front}
		t.tconn = tls.Server(t.peek, t.config)
	}

	// A read deadline 50ms ahead makes a Read on the underlying net.Conn
	// that finds no handshake bytes return with a timeout error soon,
	// instead of blocking the worker's single event-loop goroutine.
	_ = t.tconn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))

	err := t.tconn.Handshake()
	if err == nil {
		t.sub = tlsEstablished
		_ = t.tconn.SetReadDeadline(time.Time{})
		s.Front = t.tconn
		return Upgrade, SessionContinue
	}

	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.sub = tlsHandshaking
		return Continue, SessionContinue
	}

	t.sub = tlsError
	if t.reg != nil {
		t.reg.HandshakeFailure(metrics.ClassifyHandshakeError(err, t.peek.peeked))
	}
	return Continue, SessionClose
}

func (t *TlsHandshake) OnWritable(s *Session) (ProtocolResult, SessionResult) {
	return t.OnReadable(s)
}

func (t *TlsHandshake) OnTimeout(s *Session) (ProtocolResult, SessionResult) {
	return Continue, SessionClose
}

// peekConn wraps the front net.Conn so ClassifyHandshakeError can inspect
// the first bytes read off the wire even after tls.Server has consumed
// them internally, covering the "plain HTTP to TLS port" category, which
// needs the raw bytes rather than the handshake error alone.
type peekConn struct {
	net.Conn
	peeked []byte
}

func (p *peekConn) Read(b []byte) (int, error) {
	n, err := p.Conn.Read(b)
	if n > 0 && len(p.peeked) < 32 {
		room := 32 - len(p.peeked)
		if room > n {
			room = n
		}
		p.peeked = append(p.peeked, b[:room]...)
	}
	return n, err
}
