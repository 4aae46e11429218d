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

// chunkState is the sub-state machine a BodyFramer runs once Framing.Chunked
// is true: chunk-size line, chunk data, the CRLF that follows each chunk,
// and -- after the terminating zero-size chunk -- an optional block of
// trailer headers, merged into the same header map the start-line parser
// produced.
type chunkState int

const (
	chunkSize chunkState = iota
	chunkData
	chunkDataCRLF
	chunkTrailers
	chunkDone
)

// BodyFramer drives a message body to completion once its headers are
// parsed: either a fixed Content-Length countdown, a read-until-close
// response body, or the chunked-encoding state machine including
// trailers. It consumes from the same buffer the header parser used,
// continuing at the offset Validate recorded as BodyEnds.
type BodyFramer struct {
	framing Framing
	pos     int
	state   chunkState
	remain  int64

	trailers HeaderList
}

// NewBodyFramer returns a framer positioned at bodyStart, the buffer
// offset immediately following the terminating header CRLF.
func NewBodyFramer(framing Framing, bodyStart int) *BodyFramer {
	state := chunkDone
	if framing.Chunked {
		state = chunkSize
	} else if framing.HasBody {
		// a plain body stays in progress until advancePlain marks it done.
		state = chunkData
	}
	return &BodyFramer{framing: framing, pos: bodyStart, state: state, remain: framing.ContentLength}
}

// Position returns the buffer offset consumed so far.
func (f *BodyFramer) Position() int {
	return f.pos
}

// Shift re-bases the framer's position after a buffer compaction.
func (f *BodyFramer) Shift(n int) {
	f.pos -= n
	for i := range f.trailers {
		f.trailers[i].Name = f.trailers[i].Name.Shift(n)
		f.trailers[i].Value = f.trailers[i].Value.Shift(n)
	}
}

// Done reports whether the body (and, for chunked framing, its trailers)
// has been fully consumed.
func (f *BodyFramer) Done() bool {
	return f.state == chunkDone
}

// Trailers returns the trailer headers collected after the terminating
// chunk, if any.
func (f *BodyFramer) Trailers() HeaderList {
	return f.trailers
}

// Advance consumes as much of buf as is available, tracking content-length
// countdown or driving the chunked state machine; a read-until-close body
// consumes all of buf. The offset reached is available from Position(). It
// returns an Error on malformed chunk framing, nil otherwise.
func (f *BodyFramer) Advance(buf []byte) Error {
	if !f.framing.Chunked {
		return f.advancePlain(buf)
	}
	return f.advanceChunked(buf)
}

func (f *BodyFramer) advancePlain(buf []byte) Error {
	if f.state == chunkDone {
		return nil
	}
	if f.framing.ReadUntilClose {
		f.pos = len(buf)
		return nil
	}
	have := int64(len(buf) - f.pos)
	if have >= f.remain {
		f.pos += int(f.remain)
		f.remain = 0
		f.state = chunkDone
		return nil
	}
	f.pos = len(buf)
	f.remain -= have
	return nil
}

func (f *BodyFramer) advanceChunked(buf []byte) Error {
	for {
		switch f.state {
		case chunkSize:
			ln, ok := nextLine(buf, f.pos)
			if !ok {
				return nil
			}
			n, err := parseChunkSize(ln.content.Slice(buf))
			if err != nil {
				return err
			}
			f.pos = ln.end
			f.remain = n
			if n == 0 {
				f.state = chunkTrailers
			} else {
				f.state = chunkData
			}

		case chunkData:
			avail := int64(len(buf) - f.pos)
			if avail >= f.remain {
				f.pos += int(f.remain)
				f.remain = 0
				f.state = chunkDataCRLF
				continue
			}
			f.pos = len(buf)
			f.remain -= avail
			return nil

		case chunkDataCRLF:
			if len(buf)-f.pos < 2 {
				return nil
			}
			if buf[f.pos] != '\r' || buf[f.pos+1] != '\n' {
				return ErrorMalformedChunkSize.Error(nil)
			}
			f.pos += 2
			f.state = chunkSize

		case chunkTrailers:
			ln, ok := nextLine(buf, f.pos)
			if !ok {
				return nil
			}
			if ln.content.Empty() {
				f.pos = ln.end
				f.state = chunkDone
				return nil
			}
			colon := bytes.IndexByte(ln.content.Slice(buf), ':')
			if colon <= 0 {
				return ErrorMalformedHeaderLine.Error(nil)
			}
			name := Span{Start: ln.content.Start, Length: colon}
			valStart := ln.content.Start + colon + 1
			for valStart < ln.content.Start+ln.content.Length && buf[valStart] == ' ' {
				valStart++
			}
			valEnd := ln.content.Start + ln.content.Length
			for valEnd > valStart && buf[valEnd-1] == ' ' {
				valEnd--
			}
			f.trailers = append(f.trailers, Header{Name: name, Value: Span{Start: valStart, Length: valEnd - valStart}})
			f.pos = ln.end

		default:
			return nil
		}
	}
}

// parseChunkSize parses a chunk-size line: a hex digit string optionally
// followed by "; extension-params" which are ignored.
func parseChunkSize(line []byte) (int64, Error) {
	end := len(line)
	if semi := bytes.IndexByte(line, ';'); semi >= 0 {
		end = semi
	}
	hex := bytes.TrimSpace(line[:end])
	if len(hex) == 0 {
		return 0, ErrorMalformedChunkSize.Error(nil)
	}

	var n int64
	for _, c := range hex {
		var d int64
		switch {
		case '0' <= c && c <= '9':
			d = int64(c - '0')
		case 'a' <= c && c <= 'f':
			d = int64(c-'a') + 10
		case 'A' <= c && c <= 'F':
			d = int64(c-'A') + 10
		default:
			return 0, ErrorMalformedChunkSize.Error(nil)
		}
		n = n*16 + d
	}
	return n, nil
}
