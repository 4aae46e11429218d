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

// Package session implements the per-connection protocol state machine:
// a Session owns the front and back sockets, the input/output buffer
// queues and a single Protocol variant swapped in place as the connection
// progresses from an optional PROXY-protocol preamble, through an
// optional TLS handshake, through HTTP request parsing and routing, to a
// byte-shuttling Pipe.
package session

// ProtocolResult reports whether the current variant wants to keep
// running or hand off to the next one in the chain.
type ProtocolResult int

const (
	// Continue means the current protocol variant is still in charge of
	// the session.
	Continue ProtocolResult = iota
	// Upgrade means the session's Protocol field should be replaced by
	// the variant returned alongside this result.
	Upgrade
)

// SessionResult tells the event loop what it must do to the session as a
// whole after a handler call.
type SessionResult int

const (
	// SessionContinue leaves the session registered as-is.
	SessionContinue SessionResult = iota
	// SessionClose closes both sockets and removes the session.
	SessionClose
	// SessionCloseBackend closes only the back socket, keeping the front
	// open (used when a backend failure should be retried on a fresh
	// connection).
	SessionCloseBackend
	// SessionReconnectBackend closes the back socket and immediately asks
	// the caller to open a new one to the next picked backend.
	SessionReconnectBackend
	// SessionConnectBackend asks the event loop to dial the backend
	// recorded on the session and register the resulting socket.
	SessionConnectBackend
)

// Protocol is the capability set every session variant implements. Each
// method returns the pair of results the caller (the event loop, or a
// sibling handler during a same-iteration cascade) uses to decide what
// happens next: whether the handler's own state is exhausted (Upgrade)
// and whether the whole session needs loop-level attention (SessionResult
// other than SessionContinue).
type Protocol interface {
	// OnReadable, OnWritable and OnTimeout each handle one event; a
	// handler that returns Upgrade names its successor via Upgrader.Next.
	OnReadable(s *Session) (ProtocolResult, SessionResult)
	OnWritable(s *Session) (ProtocolResult, SessionResult)
	OnTimeout(s *Session) (ProtocolResult, SessionResult)
	// Name identifies the variant for logging and metrics.
	Name() string
}

// Upgrader is implemented by a Protocol that produced an Upgrade result;
// the worker event loop calls Next to fetch the successor before
// discarding the exhausted handler.
type Upgrader interface {
	Next() Protocol
}
