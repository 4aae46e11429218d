//go:build !linux

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

package upgrade

import (
	"os"

	"github.com/sirupsen/logrus"

	. "github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/config"
	"github.com/flowgate/flowgate/master"
)

// SpawnSuccessor and Restore's SCM_RIGHTS/ExtraFiles fd-handoff relies on
// Unix file-descriptor passing semantics this build does not implement.

func SpawnSuccessor(m *master.Master, cfg config.Config, binaryPath string, extraArgs []string) (*os.Process, Error) {
	return nil, ErrorUnsupportedPlatform.Error(nil)
}

func ReadPayload(fd int) (MasterPayload, Error) {
	return MasterPayload{}, ErrorUnsupportedPlatform.Error(nil)
}

func Restore(payload MasterPayload, log *logrus.Entry) (*master.Master, Error) {
	return nil, ErrorUnsupportedPlatform.Error(nil)
}
