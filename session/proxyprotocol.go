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
	"bytes"
	"strings"
)

// proxyProtoPrefix is the v1 text signature; binary v2 ("\r\n\r\n\x00\r\nQUIT\n")
// is out of scope, matching the deliberately-narrow PROXY-protocol support
// named in the data model.
var proxyProtoPrefix = []byte("PROXY ")

// ExpectProxyProtocol is the optional first variant a session starts in
// when its listener is configured to receive a PROXY protocol header
// before either TLS or HTTP. It reads one CRLF-terminated line, records
// the real client address it announces, then upgrades to next.
type ExpectProxyProtocol struct {
	next Protocol
}

// NewExpectProxyProtocol returns a variant that upgrades to next once the
// PROXY header has been consumed.
func NewExpectProxyProtocol(next Protocol) *ExpectProxyProtocol {
	return &ExpectProxyProtocol{next: next}
}

func (p *ExpectProxyProtocol) Name() string { return "ExpectProxyProtocol" }

func (p *ExpectProxyProtocol) Next() Protocol { return p.next }

func (p *ExpectProxyProtocol) OnReadable(s *Session) (ProtocolResult, SessionResult) {
	buf := make([]byte, 256)
	n, err := s.Front.Read(buf)
	if err != nil || n == 0 {
		return Continue, SessionClose
	}

	if _, werr := s.In.Write(buf[:n]); werr != nil {
		return Continue, SessionClose
	}

	idx := bytes.Index(s.In.Bytes(), []byte("\r\n"))
	if idx < 0 {
		// line not complete yet; stay in this variant
		return Continue, SessionContinue
	}

	line := s.In.Bytes()[:idx]
	if !bytes.HasPrefix(line, proxyProtoPrefix) {
		return Continue, SessionClose
	}

	fields := strings.Fields(string(line))
	// PROXY <proto> <src-ip> <dst-ip> <src-port> <dst-port>
	if len(fields) >= 3 {
		s.RealClientIP = fields[2]
	}

	s.In.Reset()

	return Upgrade, SessionContinue
}

func (p *ExpectProxyProtocol) OnWritable(s *Session) (ProtocolResult, SessionResult) {
	return Continue, SessionContinue
}

func (p *ExpectProxyProtocol) OnTimeout(s *Session) (ProtocolResult, SessionResult) {
	return Continue, SessionClose
}
