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

// Interest bits, reused for both a session's desired interest and the raw
// events merged in by the event loop each poll cycle. Readiness
// reconstructs level-triggered semantics over edge-triggered epoll: a bit
// stays set in Event until a handler reports it cannot make further
// progress with it.
const (
	Readable uint32 = 1 << iota
	Writable
)

// Readiness is the interest/event pair the event loop consults to decide
// whether to invoke a session's protocol handler.
type Readiness struct {
	Interest uint32
	Event    uint32
}

// Want reports whether bit is both of interest and currently signalled.
func (r Readiness) Want(bit uint32) bool {
	return r.Interest&bit != 0 && r.Event&bit != 0
}

// Clear drops bit from Event, called once a handler reports would-block
// for that direction.
func (r *Readiness) Clear(bit uint32) {
	r.Event &^= bit
}

// Merge folds freshly observed OS readiness into Event.
func (r *Readiness) Merge(bit uint32) {
	r.Event |= bit
}

// SetInterest replaces the bits the loop should wake this session for.
func (r *Readiness) SetInterest(bit uint32) {
	r.Interest = bit
}
