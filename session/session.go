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
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/flowgate/flowgate/buffer"
	liberr "github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/metrics"
	"github.com/flowgate/flowgate/routing"
)

// Timeouts bundles the three per-session timers named by the concurrency
// model: connect timeout on backend open, request timeout between first
// byte and end of headers, and idle timeout on keep-alive.
type Timeouts struct {
	Connect  time.Duration
	Request  time.Duration
	IdleKeep time.Duration
}

// DefaultTimeouts matches the Open Question resolution recorded in
// SPEC_FULL.md §9.
var DefaultTimeouts = Timeouts{
	Connect:  3 * time.Second,
	Request:  10 * time.Second,
	IdleKeep: 60 * time.Second,
}

// Session is a single accepted connection: a front socket, optionally a
// back socket, the input/output ring-backed buffer queues, the current
// protocol variant, readiness bits, metrics and the resolved routing
// decision. A session holds at most one back socket at a time; rerouting
// requires CloseBackend followed by OpenBackend.
type Session struct {
	ID       string
	Front    net.Conn
	Back     net.Conn
	In       *buffer.Queue
	Out      *buffer.Queue
	BackIn   *buffer.Queue
	BackOut  *buffer.Queue
	Protocol Protocol

	FrontReadiness Readiness
	BackReadiness  Readiness

	Routes *routing.ConfigState
	Picker *routing.Picker
	Policy routing.Policy

	ApplicationID string
	Backend       *routing.BackendInstance
	RealClientIP  string

	Timeouts Timeouts
	deadline time.Time

	Metrics    Metrics
	Log        *logrus.Entry
	MetricsReg *metrics.Registry

	// ListenerPort is the port the front socket was accepted on; it is
	// part of the routing lookup key alongside Host and Path.
	ListenerPort int
	SendProxyProtocolToBackend bool
}

// New allocates a session around an already-accepted front socket,
// starting in the given initial protocol variant (ExpectProxyProtocol,
// TlsHandshake or Http depending on listener configuration).
func New(front net.Conn, bufSize int, initial Protocol, routes *routing.ConfigState, picker *routing.Picker, log *logrus.Entry) *Session {
	id := uuid.NewString()
	s := &Session{
		ID:       id,
		Front:    front,
		In:       buffer.NewQueue(bufSize),
		Out:      buffer.NewQueue(bufSize),
		Protocol: initial,
		Routes:   routes,
		Picker:   picker,
		Timeouts: DefaultTimeouts,
		Metrics:  Metrics{StartedAt: time.Now(), LastActivity: time.Now()},
	}
	s.FrontReadiness.SetInterest(Readable)
	if log != nil {
		s.Log = log.WithField("session_id", id)
	}
	s.touchDeadline(s.Timeouts.Request)
	return s
}

// OpenBackend dials applicationID's next live backend via Picker and
// attaches it as the session's back socket. It is an error to call this
// while a back socket is already open.
func (s *Session) OpenBackend() liberr.Error {
	if s.Back != nil {
		return ErrorAlreadyHasBackSocket.Error(nil)
	}

	b, err := s.Picker.Next(s.Routes, s.ApplicationID)
	if err != nil {
		return err
	}

	conn, derr := net.DialTimeout("tcp", net.JoinHostPort(b.IP, strconv.Itoa(b.Port)), s.Timeouts.Connect)
	if derr != nil {
		s.Picker.MarkDead(b)
		return ErrorBackendConnect.Error(derr)
	}

	s.Backend = b
	s.Back = conn
	s.BackIn = buffer.NewQueue(s.In.Capacity())
	s.BackOut = buffer.NewQueue(s.In.Capacity())
	s.BackReadiness.SetInterest(Writable)
	return nil
}

// CloseBackend closes and clears the back socket, leaving the front
// connection intact so the session can reconnect or respond with an
// error.
func (s *Session) CloseBackend() {
	if s.Back != nil {
		_ = s.Back.Close()
	}
	s.Back = nil
	s.BackIn = nil
	s.BackOut = nil
}

// Close tears down both sockets. It is idempotent.
func (s *Session) Close() {
	if s.Front != nil {
		_ = s.Front.Close()
	}
	s.CloseBackend()
}

// Upgrade replaces the session's protocol variant in place, preserving
// buffers, request id and metrics, per the design note that an Upgrade
// result rewrites the variant rather than constructing a new Session.
func (s *Session) Upgrade(next Protocol) {
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"from": s.Protocol.Name(),
			"to":   next.Name(),
		}).Debug("protocol upgrade")
	}
	s.Protocol = next
}

// ResetForKeepAlive rewinds both buffer queues past the just-processed
// message so the session can parse the next request/response pair
// without reallocating storage.
func (s *Session) ResetForKeepAlive() {
	s.In.Compact()
	s.Out.Compact()
	if s.BackIn != nil {
		s.BackIn.Compact()
	}
	if s.BackOut != nil {
		s.BackOut.Compact()
	}
	s.touchDeadline(s.Timeouts.IdleKeep)
}

// touchDeadline records when the currently active timer (request or idle)
// should fire; the event loop's timer heap reads Deadline after each poll
// pass.
func (s *Session) touchDeadline(d time.Duration) {
	s.deadline = time.Now().Add(d)
}

// Deadline returns the time at which OnTimeout should be invoked for this
// session's current phase.
func (s *Session) Deadline() time.Time {
	return s.deadline
}

// Touch records front/back activity for idle-timeout bookkeeping and
// updates the metrics' LastActivity timestamp.
func (s *Session) Touch() {
	s.Metrics.touch()
}
