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
	"fmt"
	"net"
	"strings"

	"github.com/flowgate/flowgate/httpmsg"
)

// hopByHop is the set of header names that must never be forwarded
// verbatim to the next hop, per the Connection-directive stripping rule
// named in §4.2.
var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// Http parses one request off the front buffer, resolves the route,
// opens (or reuses) the back socket, rewrites and forwards the request,
// then upgrades to Pipe. A parse Error synthesizes a 400 and closes the
// session; a routing miss or dead-backend pool responds 404/503 and
// closes rather than upgrading.
type Http struct {
	parser *httpmsg.RequestParser
	next   Protocol
}

// NewHttp returns a variant with a fresh request parser, ready to parse
// the next request from the front buffer. The keep-alive path calls it
// again for every new request.
func NewHttp() *Http {
	return &Http{parser: httpmsg.NewRequestParser()}
}

func (h *Http) Name() string { return "Http" }

func (h *Http) Next() Protocol { return h.next }

func (h *Http) OnReadable(s *Session) (ProtocolResult, SessionResult) {
	buf := make([]byte, 16*1024)
	n, err := s.Front.Read(buf)
	if err != nil {
		return Continue, SessionClose
	}
	if n == 0 {
		return Continue, SessionContinue
	}

	if _, werr := s.In.Write(buf[:n]); werr != nil {
		return Continue, SessionClose
	}
	s.Touch()

	state := h.parser.Parse(s.In.Bytes())
	switch state {
	case httpmsg.StateError:
		if s.MetricsReg != nil {
			s.MetricsReg.ParseError("request")
		}
		h.respondAndClose(s, 400, "Bad Request")
		return Continue, SessionClose

	case httpmsg.StateHeadersParsed:
		return h.route(s)

	default:
		return Continue, SessionContinue
	}
}

func (h *Http) route(s *Session) (ProtocolResult, SessionResult) {
	req, verr := h.parser.Validate(s.In.Bytes())
	if verr != nil {
		h.respondAndClose(s, 400, "Bad Request")
		return Continue, SessionClose
	}

	host := req.Host
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}

	appID, ok := s.Routes.LookupHTTP(host, req.URI, s.ListenerPort)
	if !ok {
		h.respondAndClose(s, 404, "Not Found")
		return Continue, SessionClose
	}
	s.ApplicationID = appID

	if s.Back == nil {
		if operr := s.OpenBackend(); operr != nil {
			if s.MetricsReg != nil {
				s.MetricsReg.BackendConnectFailure(appID)
			}
			h.respondAndClose(s, 503, "Service Unavailable")
			return Continue, SessionClose
		}
	}

	h.rewrite(s, req)

	s.In.AdvanceOutput(s.In.Len())
	out := s.In.Flush()
	if _, werr := s.Back.Write(out); werr != nil {
		return Continue, SessionCloseBackend
	}
	s.In.Reset()
	h.parser = httpmsg.NewRequestParser()
	h.next = NewPipe(req.Framing)

	return Upgrade, SessionContinue
}

// rewrite queues the header edits that turn the client's request into the
// one sent upstream: strip hop-by-hop headers named by the Connection
// directive (and the fixed set hopByHop always drops), then append
// X-Forwarded-For at the insertion point the parser recorded.
func (h *Http) rewrite(s *Session, req *httpmsg.ValidatedRequest) {
	connNamed := map[string]bool{}
	for _, v := range req.Headers["connection"] {
		it := httpmsg.Tokens([]byte(v))
		for tok, ok := it.Next(); ok; tok, ok = it.Next() {
			connNamed[strings.ToLower(string(tok))] = true
		}
	}

	for i, line := range h.parser.HeaderLines() {
		header := h.parser.HeaderList()[i]
		name := strings.ToLower(string(header.Name.Slice(s.In.Bytes())))
		if hopByHop[name] || connNamed[name] {
			s.In.QueueEdit(line.Start, line.Length, nil)
		}
	}

	clientIP := s.RealClientIP
	if clientIP == "" {
		if host, _, err := net.SplitHostPort(s.Front.RemoteAddr().String()); err == nil {
			clientIP = host
		}
	}

	xff := fmt.Sprintf("X-Forwarded-For: %s\r\n", clientIP)
	if prior, ok := req.Headers["x-forwarded-for"]; ok && len(prior) > 0 {
		xff = fmt.Sprintf("X-Forwarded-For: %s, %s\r\n", prior[0], clientIP)
	}
	s.In.QueueEdit(h.parser.HeadersStart(), 0, []byte(xff))
}

// respondAndClose writes a minimal synthesized response directly to the
// front socket; it is used only for the error paths (400/404/503) that
// precede a backend ever being chosen or reached.
func (h *Http) respondAndClose(s *Session, code int, reason string) {
	body := reason + "\n"
	resp := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s", code, reason, len(body), body)
	_, _ = s.Front.Write([]byte(resp))
}

func (h *Http) OnWritable(s *Session) (ProtocolResult, SessionResult) {
	return Continue, SessionContinue
}

func (h *Http) OnTimeout(s *Session) (ProtocolResult, SessionResult) {
	h.respondAndClose(s, 408, "Request Timeout")
	return Continue, SessionClose
}
