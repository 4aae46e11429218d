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

// Package buffer implements the ring buffer and buffer queue that back every
// session's front and back byte streams. Data is never copied once written;
// the incremental parser in httpmsg records spans into the slice returned by
// Bytes, so compaction is the only operation allowed to move bytes around,
// and callers must re-base any recorded span after calling Compact.
package buffer

import . "github.com/flowgate/flowgate/errors"

// Ring is a contiguous byte region with start, end and capacity, as described
// by the data model: 0 <= start <= end <= capacity. It does not wrap; once
// end reaches capacity, Compact must reclaim the [0, start) dead zone before
// more bytes can be written.
type Ring struct {
	data  []byte
	start int
	end   int
}

// NewRing allocates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	return &Ring{data: make([]byte, capacity)}
}

// Capacity returns the total size of the underlying storage.
func (r *Ring) Capacity() int {
	return len(r.data)
}

// Len returns the number of unconsumed bytes currently stored.
func (r *Ring) Len() int {
	return r.end - r.start
}

// Available returns how many bytes can still be appended before Compact is
// required.
func (r *Ring) Available() int {
	return len(r.data) - r.end
}

// Bytes returns the live region [start, end). The returned slice aliases the
// ring's storage; it is invalidated by the next Compact call.
func (r *Ring) Bytes() []byte {
	return r.data[r.start:r.end]
}

// Write appends p to the end of the buffer. It never partially writes: if p
// does not fit in the remaining capacity it returns ErrorCapacityExceeded and
// the buffer is left unchanged.
func (r *Ring) Write(p []byte) (int, Error) {
	if len(p) > r.Available() {
		return 0, ErrorCapacityExceeded.Error(nil)
	}

	n := copy(r.data[r.end:], p)
	if n != len(p) {
		return n, ErrorShortWrite.Error(nil)
	}

	r.end += n
	return n, nil
}

// Consume advances start by n, discarding n bytes from the front of the live
// region. It is the caller's responsibility to have already processed those
// bytes (the buffer queue's parsed_position tracks this).
func (r *Ring) Consume(n int) Error {
	if n < 0 || r.start+n > r.end {
		return ErrorInvalidPosition.Error(nil)
	}

	r.start += n
	return nil
}

// Compact shifts the live region down to offset 0, reclaiming the dead zone
// before start. Any byte span recorded by a caller (httpmsg.Span) as an
// offset into a slice returned by Bytes must be re-based by the amount this
// call shifted: newOffset = oldOffset - shifted.
func (r *Ring) Compact() (shifted int) {
	if r.start == 0 {
		return 0
	}

	shifted = r.start
	n := copy(r.data, r.data[r.start:r.end])
	r.start = 0
	r.end = n
	return shifted
}

// Reset empties the buffer without releasing its storage.
func (r *Ring) Reset() {
	r.start = 0
	r.end = 0
}
