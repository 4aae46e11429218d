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

// Package httpmsg implements the incremental HTTP/1.x request and response
// parsers. Header names and values are recorded as Span (start offset +
// length) into the caller's buffer, never as owned strings, until Validate
// is called. Parsing is not allocation-free: the list of header spans grows
// by append, and the duplicate-header guard stores a lower-cased copy of
// each name it checks.
package httpmsg

import "bytes"

// Span is a byte range into a buffer supplied by the caller. It never
// outlives the buffer it was recorded against; if the buffer is compacted
// (buffer.Ring.Compact), every recorded Span must be re-based with Shift.
type Span struct {
	Start  int
	Length int
}

// Slice returns the bytes this span designates in buf.
func (s Span) Slice(buf []byte) []byte {
	return buf[s.Start : s.Start+s.Length]
}

// Empty reports whether the span designates zero bytes.
func (s Span) Empty() bool {
	return s.Length == 0
}

// Shift re-bases the span after a buffer compaction that dropped n bytes
// from the front.
func (s Span) Shift(n int) Span {
	return Span{Start: s.Start - n, Length: s.Length}
}

func equalFoldASCII(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca |= 0x20
		}
		if 'A' <= cb && cb <= 'Z' {
			cb |= 0x20
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// lineSpan is a line found in a buffer, terminated by CRLF. content is the
// span of bytes before the CRLF; end is the buffer offset just past it.
type lineSpan struct {
	content Span
	end     int
}

// nextLine scans buf[pos:] for a CRLF-terminated line. ok is false when no
// full line is available yet (the caller must read more bytes and retry
// with the same pos).
func nextLine(buf []byte, pos int) (ln lineSpan, ok bool) {
	idx := bytes.Index(buf[pos:], crlf)
	if idx < 0 {
		return lineSpan{}, false
	}

	return lineSpan{content: Span{Start: pos, Length: idx}, end: pos + idx + 2}, true
}

var crlf = []byte("\r\n")
