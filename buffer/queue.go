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

package buffer

import . "github.com/flowgate/flowgate/errors"

// Edit is a pending slice mutation produced by header rewriting (e.g.
// appending X-Forwarded-For, stripping a hop-by-hop header). Edits are
// queued against offsets in the buffer's live region and applied in order
// by Flush, never eagerly, so the parser's recorded spans stay valid until
// the message is actually written out.
type Edit struct {
	Offset int
	Delete int
	Insert []byte
}

// Queue layers a consumer position (ParsedPosition) and a producer position
// (OutputPosition) on top of a Ring, plus a list of pending Edits applied
// lazily on Flush. Invariant: 0 <= parsed <= output <= end <= capacity.
type Queue struct {
	*Ring
	parsed int
	output int
	edits  []Edit
}

// NewQueue allocates a buffer queue with the given ring capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{Ring: NewRing(capacity)}
}

// ParsedPosition returns the consumer offset: bytes before this offset have
// already been handed to the parser and validated.
func (q *Queue) ParsedPosition() int {
	return q.parsed
}

// OutputPosition returns the producer offset: bytes before this offset have
// already been written to the peer socket.
func (q *Queue) OutputPosition() int {
	return q.output
}

// AdvanceParsed moves the consumer position forward by n bytes, validating
// parsed <= output.
func (q *Queue) AdvanceParsed(n int) Error {
	next := q.parsed + n
	if next < 0 || next > q.output {
		return ErrorInvalidPosition.Error(nil)
	}

	q.parsed = next
	return nil
}

// AdvanceOutput moves the producer position forward by n bytes, validating
// output <= Len().
func (q *Queue) AdvanceOutput(n int) Error {
	next := q.output + n
	if n < 0 || next < q.parsed || next > q.Len() {
		return ErrorInvalidPosition.Error(nil)
	}

	q.output = next
	return nil
}

// QueueEdit appends a pending edit to be applied on the next Flush.
func (q *Queue) QueueEdit(offset, del int, insert []byte) {
	q.edits = append(q.edits, Edit{Offset: offset, Delete: del, Insert: insert})
}

// Flush applies all pending edits, in the order they were queued, to the
// live region and returns the resulting bytes. Edit offsets are relative to
// the buffer's live region at queue time; callers must queue edits in
// ascending offset order since each edit shifts everything after it.
func (q *Queue) Flush() []byte {
	if len(q.edits) == 0 {
		out := make([]byte, q.Len())
		copy(out, q.Bytes())
		q.edits = q.edits[:0]
		return out
	}

	src := q.Bytes()
	out := make([]byte, 0, len(src))
	cursor := 0

	for _, e := range q.edits {
		if e.Offset > cursor {
			out = append(out, src[cursor:e.Offset]...)
		}
		out = append(out, e.Insert...)
		cursor = e.Offset + e.Delete
	}

	if cursor < len(src) {
		out = append(out, src[cursor:]...)
	}

	q.edits = q.edits[:0]
	return out
}

// Compact reclaims the dead zone before start and re-bases parsed/output
// positions accordingly.
func (q *Queue) Compact() (shifted int) {
	shifted = q.Ring.Compact()
	q.parsed -= shifted
	q.output -= shifted
	return shifted
}

// Reset empties the queue, including pending edits, without releasing its
// storage.
func (q *Queue) Reset() {
	q.Ring.Reset()
	q.parsed = 0
	q.output = 0
	q.edits = q.edits[:0]
}
