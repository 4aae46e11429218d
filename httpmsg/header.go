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
	"strings"
)

// Header is one parsed header line, recorded as spans into the source
// buffer.
type Header struct {
	Name  Span
	Value Span
}

// HeaderList is the ordered sequence of headers recorded while parsing.
// Order is preserved because Set-Cookie values must come back out in the
// order the backend sent them.
type HeaderList []Header

// Map materializes an owned, case-insensitive lookup of the headers. It
// is called once, by Validate, after parsing completes, and is where
// header values are first copied into owned strings.
func (h HeaderList) Map(buf []byte) map[string][]string {
	m := make(map[string][]string, len(h))
	for _, header := range h {
		name := strings.ToLower(string(header.Name.Slice(buf)))
		m[name] = append(m[name], string(header.Value.Slice(buf)))
	}
	return m
}

func isHeaderNamed(buf []byte, h Header, name string) bool {
	return equalFoldASCII(h.Name.Slice(buf), []byte(name))
}

// TokenIter walks a comma-separated header value (e.g. Connection: close,
// upgrade) yielding one trimmed token per call to Next. It is single-pass
// and borrows from the slice it was constructed with.
type TokenIter struct {
	rest []byte
	done bool
}

// Tokens returns an iterator over the comma-separated tokens in v.
func Tokens(v []byte) *TokenIter {
	return &TokenIter{rest: v}
}

// Next returns the next trimmed token and true, or nil and false once the
// iterator is exhausted.
func (t *TokenIter) Next() ([]byte, bool) {
	if t.done {
		return nil, false
	}

	idx := bytes.IndexByte(t.rest, ',')
	var tok []byte
	if idx < 0 {
		tok = t.rest
		t.done = true
	} else {
		tok = t.rest[:idx]
		t.rest = t.rest[idx+1:]
	}

	return bytes.TrimSpace(tok), true
}

// HasToken reports whether v, a comma-separated header value, contains
// token (case-insensitive).
func HasToken(v []byte, token string) bool {
	if len(v) == 0 {
		return false
	}

	it := Tokens(v)
	for {
		tok, ok := it.Next()
		if !ok {
			return false
		}
		if equalFoldASCII(tok, []byte(token)) {
			return true
		}
	}
}
