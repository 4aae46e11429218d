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

package httpmsg

import (
	"bytes"

	. "github.com/flowgate/flowgate/errors"
)

// RequestParser incrementally parses an HTTP/1.x request line and headers
// from a growing buffer. Parse may be called again with the same buffer
// (grown since the previous call) and resumes from the recorded position;
// it never re-scans bytes already consumed.
type RequestParser struct {
	state        State
	pos          int
	method       Span
	uri          Span
	version      Span
	headers      HeaderList
	headerLines  []Span
	headersStart int

	seenHost          bool
	seenContentLength bool
	seenTE            bool
	duplicateGuard    map[string]bool
}

// NewRequestParser returns a parser ready to parse the start of a request.
func NewRequestParser() *RequestParser {
	return &RequestParser{state: StateInitial, duplicateGuard: make(map[string]bool)}
}

// State returns the current parser state.
func (p *RequestParser) State() State {
	return p.state
}

// Position returns the buffer offset up to which input has been consumed.
func (p *RequestParser) Position() int {
	return p.pos
}

// Shift re-bases every recorded span and the consumed position after a
// buffer compaction that dropped n bytes from the front.
func (p *RequestParser) Shift(n int) {
	p.pos -= n
	p.method = p.method.Shift(n)
	p.uri = p.uri.Shift(n)
	p.version = p.version.Shift(n)
	for i := range p.headers {
		p.headers[i].Name = p.headers[i].Name.Shift(n)
		p.headers[i].Value = p.headers[i].Value.Shift(n)
	}
}

// Parse advances the parser as far as buf allows. Names and values are
// recorded as spans, not copied, but the header and header-line lists grow
// by append and the duplicate guard stores lower-cased names, so parsing
// can allocate. An
// incomplete line returns the current state unchanged; the caller must
// supply more bytes and call Parse again.
func (p *RequestParser) Parse(buf []byte) State {
	for {
		switch p.state {
		case StateInitial:
			ln, ok := nextLine(buf, p.pos)
			if !ok {
				return p.state
			}
			if !p.parseRequestLine(buf, ln.content) {
				p.state = StateError
				return p.state
			}
			p.pos = ln.end
			p.state = StateParsingHeaders
			p.headersStart = p.pos

		case StateParsingHeaders:
			ln, ok := nextLine(buf, p.pos)
			if !ok {
				return p.state
			}
			if ln.content.Empty() {
				p.pos = ln.end
				if p.seenContentLength && p.seenTE {
					p.state = StateError
					return p.state
				}
				p.state = StateHeadersParsed
				return p.state
			}
			if !p.parseHeaderLine(buf, ln.content) {
				p.state = StateError
				return p.state
			}
			p.headerLines = append(p.headerLines, Span{Start: ln.content.Start, Length: ln.end - ln.content.Start})
			p.pos = ln.end

		default:
			return p.state
		}
	}
}

// HeaderList returns the headers recorded so far, as spans into the
// buffer last passed to Parse.
func (p *RequestParser) HeaderList() HeaderList {
	return p.headers
}

// HeaderLines returns the full line span (including its terminating
// CRLF) for each recorded header, in the same order as HeaderList, so a
// caller rewriting the request (stripping a hop-by-hop header) can queue
// a deletion edit against buffer.Queue without re-scanning the buffer.
func (p *RequestParser) HeaderLines() []Span {
	return p.headerLines
}

// HeadersStart returns the buffer offset immediately after the request
// line, the conventional insertion point for a synthesized header such as
// X-Forwarded-For.
func (p *RequestParser) HeadersStart() int {
	return p.headersStart
}

func (p *RequestParser) parseRequestLine(buf []byte, line Span) bool {
	content := line.Slice(buf)

	sp1 := bytes.IndexByte(content, ' ')
	if sp1 <= 0 {
		return false
	}

	rest := content[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 <= 0 {
		return false
	}

	p.method = Span{Start: line.Start, Length: sp1}
	p.uri = Span{Start: line.Start + sp1 + 1, Length: sp2}
	p.version = Span{Start: line.Start + sp1 + 1 + sp2 + 1, Length: len(rest) - sp2 - 1}

	return p.version.Length > 0
}

func (p *RequestParser) parseHeaderLine(buf []byte, line Span) bool {
	content := line.Slice(buf)

	colon := bytes.IndexByte(content, ':')
	if colon <= 0 {
		return false
	}

	name := Span{Start: line.Start, Length: colon}

	valStart := colon + 1
	for valStart < len(content) && content[valStart] == ' ' {
		valStart++
	}
	valEnd := len(content)
	for valEnd > valStart && content[valEnd-1] == ' ' {
		valEnd--
	}
	value := Span{Start: line.Start + valStart, Length: valEnd - valStart}

	h := Header{Name: name, Value: value}

	switch {
	case isHeaderNamed(buf, h, "set-cookie"):
		// multi-valued, no duplicate guard
	case isHeaderNamed(buf, h, "host"):
		if p.seenHost {
			return false
		}
		p.seenHost = true
	case isHeaderNamed(buf, h, "content-length"):
		if p.seenContentLength {
			return false
		}
		p.seenContentLength = true
	case isHeaderNamed(buf, h, "transfer-encoding"):
		p.seenTE = true
	default:
		lname := lowerASCII(name.Slice(buf))
		if p.duplicateGuard[lname] {
			return false
		}
		p.duplicateGuard[lname] = true
	}

	p.headers = append(p.headers, h)
	return true
}

// Validate materializes a ValidatedRequest from the parsed spans. It must
// only be called once State() == StateHeadersParsed.
func (p *RequestParser) Validate(buf []byte) (*ValidatedRequest, Error) {
	if p.state != StateHeadersParsed {
		return nil, ErrorNotReady.Error(nil)
	}

	headers := p.headers.Map(buf)
	version := string(p.version.Slice(buf))

	host := ""
	if v, ok := headers["host"]; ok && len(v) > 0 {
		host = v[0]
	} else if version == "HTTP/1.1" {
		return nil, ErrorMissingHost.Error(nil)
	}

	framing, ferr := deriveFraming(headers, true)
	if ferr != nil {
		return nil, ferr
	}

	return &ValidatedRequest{
		Method:   string(p.method.Slice(buf)),
		URI:      string(p.uri.Slice(buf)),
		Version:  version,
		Host:     host,
		Headers:  headers,
		Framing:  framing,
		BodyEnds: p.pos,
	}, nil
}

// ValidatedRequest is the materialized, owned view of a fully parsed
// request, produced once by Validate.
type ValidatedRequest struct {
	Method   string
	URI      string
	Version  string
	Host     string
	Headers  map[string][]string
	Framing  Framing
	BodyEnds int
}
