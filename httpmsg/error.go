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

import "github.com/flowgate/flowgate/errors"

const (
	ErrorMalformedStartLine errors.CodeError = iota + errors.MinPkgHttpMsg
	ErrorMalformedHeaderLine
	ErrorDuplicateHeader
	ErrorConflictingFraming
	ErrorMissingHost
	ErrorNotReady
	ErrorMalformedChunkSize
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorMalformedStartLine)
	errors.RegisterIdFctMessage(ErrorMalformedStartLine, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorMalformedStartLine:
		return "request or status line is malformed"
	case ErrorMalformedHeaderLine:
		return "header line is malformed"
	case ErrorDuplicateHeader:
		return "duplicate header is not allowed for this header name"
	case ErrorConflictingFraming:
		return "both Content-Length and Transfer-Encoding are present"
	case ErrorMissingHost:
		return "Host header is required for HTTP/1.1 requests"
	case ErrorNotReady:
		return "validate was called before headers finished parsing"
	case ErrorMalformedChunkSize:
		return "chunk size line is malformed"
	}

	return ""
}
