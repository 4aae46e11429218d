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

package metrics

import (
	"crypto/tls"
	"errors"
	"strings"
)

// TLSErrorCategory is the small enum the openssl-categorization design
// note calls for: each low-level handshake failure gets its own counted
// bucket rather than one generic "tls failure" counter.
type TLSErrorCategory string

const (
	CategoryNoSharedCipher    TLSErrorCategory = "no_shared_cipher"
	CategoryUnsupportedProto  TLSErrorCategory = "unsupported_protocol"
	CategorySNIMismatch       TLSErrorCategory = "sni_mismatch"
	CategoryPlainHTTPOnTLS    TLSErrorCategory = "plain_http_on_tls_port"
	CategoryIO                TLSErrorCategory = "io"
)

// ClassifyHandshakeError maps a net/tls handshake error (and the raw
// bytes read so far, needed to detect a plaintext HTTP request hitting a
// TLS listener) to one of the categories above.
func ClassifyHandshakeError(err error, peek []byte) TLSErrorCategory {
	if looksLikePlainHTTP(peek) {
		return CategoryPlainHTTPOnTLS
	}

	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		if looksLikePlainHTTP(recErr.RecordHeader[:]) {
			return CategoryPlainHTTPOnTLS
		}
		return CategoryUnsupportedProto
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "no cipher suite"):
		return CategoryNoSharedCipher
	case strings.Contains(msg, "protocol version"):
		return CategoryUnsupportedProto
	case strings.Contains(msg, "server name"):
		return CategorySNIMismatch
	default:
		return CategoryIO
	}
}

// looksLikePlainHTTP reports whether b starts with an HTTP/1.x request
// method, the signature of a plaintext client connecting to a TLS
// listener (scenario 5 of the testable properties).
func looksLikePlainHTTP(b []byte) bool {
	for _, m := range [][]byte{[]byte("GET "), []byte("POST "), []byte("HEAD "), []byte("PUT "), []byte("OPTIONS ")} {
		if len(b) >= len(m) && string(b[:len(m)]) == string(m) {
			return true
		}
	}
	return false
}

// HandshakeFailure records a categorized TLS handshake failure.
func (r *Registry) HandshakeFailure(cat TLSErrorCategory) {
	r.TLSHandshakeFail.WithLabelValues(string(cat)).Inc()
	r.count("openssl." + string(cat))
}
