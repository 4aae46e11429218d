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

package master

import "github.com/flowgate/flowgate/errors"

const (
	ErrorUnknownOrderKind errors.CodeError = iota + errors.MinPkgMaster
	ErrorMissingField
	ErrorDuplicateRequestID
	ErrorNoWorkers
	ErrorUnknownWorker
	ErrorSpawnFailed
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorUnknownOrderKind)
	errors.RegisterIdFctMessage(ErrorUnknownOrderKind, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorUnknownOrderKind:
		return "order carries an unrecognized kind"
	case ErrorMissingField:
		return "order is missing a field required by its kind"
	case ErrorDuplicateRequestID:
		return "request id is already in flight"
	case ErrorNoWorkers:
		return "no worker is in the Running state to receive this order"
	case ErrorUnknownWorker:
		return "worker id is not present in the worker table"
	case ErrorSpawnFailed:
		return "failed to spawn a worker process or bind a socket"
	}

	return ""
}
