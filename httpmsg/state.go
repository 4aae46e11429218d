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

// State is the parser's tagged position, shared by the request and
// response parsers.
type State int

const (
	// StateInitial has not yet parsed the request/status line.
	StateInitial State = iota
	// StateParsingHeaders has parsed the start line and zero or more
	// headers; the terminating empty line has not been seen.
	StateParsingHeaders
	// StateHeadersParsed reached the terminating empty line. Parsing is
	// done; the caller may now call Validate.
	StateHeadersParsed
	// StateError is sticky: a malformed line or a rejected duplicate
	// header was seen and no further progress is made.
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateParsingHeaders:
		return "ParsingHeaders"
	case StateHeadersParsed:
		return "HeadersParsed"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}
