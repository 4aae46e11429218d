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
	"strconv"

	. "github.com/flowgate/flowgate/errors"
)

// ResponseParser incrementally parses an HTTP/1.x status line and headers.
// It mirrors RequestParser's restart contract: Parse resumes from the
// recorded position on every call.
//
// Set-Cookie is the one header name allowed to repeat (see HeaderList.Map);
// every other duplicate header name is a parse error, matching
// RequestParser's duplicate-Host and duplicate-Content-Length policy.
type ResponseParser struct {
	state        State
	pos          int
	version      Span
	statusCode   Span
	reason       Span
	headers      HeaderList
	headerLines  []Span
	headersStart int

	seenContentLength bool
	seenTE            bool
	duplicateGuard    map[string]bool
}

// NewResponseParser returns a parser ready to parse the start of a
// response.
func NewResponseParser() *ResponseParser {
	return &ResponseParser{state: StateInitial, duplicateGuard: make(map[string]bool)}
}

func (p *ResponseParser) State() State {
	return p.state
}

func (p *ResponseParser) Position() int {
	return p.pos
}

// Shift re-bases every recorded span after a buffer compaction.
func (p *ResponseParser) Shift(n int) {
	p.pos -= n
	p.version = p.version.Shift(n)
	p.statusCode = p.statusCode.Shift(n)
	p.reason = p.reason.Shift(n)
	for i := range p.headers {
		p.headers[i].Name = p.headers[i].Name.Shift(n)
		p.headers[i].Value = p.headers[i].Value.Shift(n)
	}
}

func (p *ResponseParser) Parse(buf []byte) State {
	for {
		switch p.state {
		case StateInitial:
			ln, ok := nextLine(buf, p.pos)
			if !ok {
				return p.state
			}
			if !p.parseStatusLine(buf, ln.content) {
				p.state = StateError
				return p.state
			}
			p.pos = ln.end
			p.state = StateParsingHeaders

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
			p.pos = ln.end

		default:
			return p.state
		}
	}
}

func (p *ResponseParser) parseStatusLine(buf []byte, line Span) bool {
	content := line.Slice(buf)

	sp1 := bytes.IndexByte(content, ' ')
	if sp1 <= 0 {
		return false
	}
	rest := content[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 < 0 {
		sp2 = len(rest)
	}

	p.version = Span{Start: line.Start, Length: sp1}
	p.statusCode = Span{Start: line.Start + sp1 + 1, Length: sp2}
	if sp2 < len(rest) {
		p.reason = Span{Start: line.Start + sp1 + 1 + sp2 + 1, Length: len(rest) - sp2 - 1}
	}

	return p.statusCode.Length == 3
}

func (p *ResponseParser) parseHeaderLine(buf []byte, line Span) bool {
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

func lowerASCII(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			c |= 0x20
		}
		out[i] = c
	}
	return string(out)
}

// Validate materializes a ValidatedResponse from the parsed spans. It must
// only be called once State() == StateHeadersParsed.
func (p *ResponseParser) Validate(buf []byte) (*ValidatedResponse, Error) {
	if p.state != StateHeadersParsed {
		return nil, ErrorNotReady.Error(nil)
	}

	headers := p.headers.Map(buf)

	code, err := strconv.Atoi(string(p.statusCode.Slice(buf)))
	if err != nil {
		return nil, ErrorMalformedStartLine.Error(nil)
	}

	framing, ferr := deriveFraming(headers, false)
	if ferr != nil {
		return nil, ferr
	}

	// 1xx, 204 and 304 responses never carry a body regardless of framing
	// headers.
	if code < 200 || code == 204 || code == 304 {
		framing.HasBody = false
		framing.ReadUntilClose = false
		framing.Chunked = false
	}

	reason := ""
	if !p.reason.Empty() {
		reason = string(p.reason.Slice(buf))
	}

	return &ValidatedResponse{
		Version:    string(p.version.Slice(buf)),
		StatusCode: code,
		Reason:     reason,
		Headers:    headers,
		Framing:    framing,
		BodyEnds:   p.pos,
	}, nil
}

// ValidatedResponse is the materialized, owned view of a fully parsed
// response, produced once by Validate.
type ValidatedResponse struct {
	Version    string
	StatusCode int
	Reason     string
	Headers    map[string][]string
	Framing    Framing
	BodyEnds   int
}
