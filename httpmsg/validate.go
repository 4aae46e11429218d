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
	"strconv"

	. "github.com/flowgate/flowgate/errors"
)

// Framing is the body-framing and connection-management decision derived
// from a validated message's headers.
type Framing struct {
	Close          bool
	KeepAlive      bool
	Upgrade        bool
	Chunked        bool
	HasBody        bool
	ReadUntilClose bool
	ContentLength  int64
}

// deriveFraming inspects the Connection and body-framing headers common to
// both requests and responses. isRequest controls the "absent framing
// headers" default: a request with neither Transfer-Encoding nor
// Content-Length has no body; a response in the same situation is marked
// HasBody and ReadUntilClose, to be read until the connection closes.
func deriveFraming(headers map[string][]string, isRequest bool) (Framing, Error) {
	var f Framing

	if conn, ok := headers["connection"]; ok {
		for _, v := range conn {
			if HasToken([]byte(v), "close") {
				f.Close = true
			}
			if HasToken([]byte(v), "keep-alive") {
				f.KeepAlive = true
			}
			if HasToken([]byte(v), "upgrade") {
				f.Upgrade = true
			}
		}
	}

	_, hasTE := headers["transfer-encoding"]
	clValues, hasCL := headers["content-length"]

	if hasTE && hasCL {
		return f, ErrorConflictingFraming.Error(nil)
	}

	switch {
	case hasTE:
		f.Chunked = true
		f.HasBody = true
	case hasCL:
		n, err := strconv.ParseInt(clValues[0], 10, 64)
		if err != nil || n < 0 {
			return f, ErrorMalformedHeaderLine.Error(nil)
		}
		f.ContentLength = n
		f.HasBody = n > 0
	default:
		if !isRequest {
			f.HasBody = true
			f.ReadUntilClose = true
		}
	}

	return f, nil
}
