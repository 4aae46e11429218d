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

package worker

import "github.com/flowgate/flowgate/errors"

const (
	ErrorSpawnFailed errors.CodeError = iota + errors.MinPkgWorker
	ErrorNotRunning
	ErrorUnknownToken
	ErrorDuplicateToken
	ErrorListenerTransfer
	ErrorUnsupportedPlatform
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorSpawnFailed)
	errors.RegisterIdFctMessage(ErrorSpawnFailed, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorSpawnFailed:
		return "failed to fork and exec the worker process"
	case ErrorNotRunning:
		return "worker is not in the Running state"
	case ErrorUnknownToken:
		return "event loop token has no registered session or listener"
	case ErrorDuplicateToken:
		return "token already registered; this is a supervision-aborting invariant violation"
	case ErrorListenerTransfer:
		return "failed to transfer a listening socket fd over the side channel"
	case ErrorUnsupportedPlatform:
		return "operation requires a POSIX platform"
	}

	return ""
}
