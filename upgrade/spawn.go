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

//go:build linux

package upgrade

import (
	"os"
	"os/exec"

	"github.com/flowgate/flowgate/config"
	. "github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/master"
)

// SpawnSuccessor execs a new copy of binaryPath in master mode, handing it
// a payload pipe plus every running worker's command and side channel
// fds over ExtraFiles. It does not stop m's own command server or wait
// for the child; the caller does both once satisfied the successor has
// taken over, in the simplest deployment immediately after this call
// returns, trusting the successor to bind its own command socket fresh.
func SpawnSuccessor(m *master.Master, cfg config.Config, binaryPath string, extraArgs []string) (*os.Process, Error) {
	r, w, perr := os.Pipe()
	if perr != nil {
		return nil, ErrorSpawnFailed.Error(perr)
	}

	payload := MasterPayload{
		Config:       cfg,
		Routing:      m.Routes.Snapshot(),
		NextWorkerID: m.Workers.PeekNextID(),
	}

	extraFiles := []*os.File{r}
	nextFd := 4 // fd 3 is r, assigned by ExtraFiles[0].

	for _, wk := range m.Workers.All() {
		chFile, cerr := wk.Channel.File()
		if cerr != nil {
			return nil, ErrorSpawnFailed.Error(cerr)
		}
		wp := WorkerPayload{ID: wk.ID, Pid: wk.Pid, ChannelFd: nextFd, SideChannelFd: -1}
		extraFiles = append(extraFiles, chFile)
		nextFd++

		if wk.SideChannel != nil {
			sideFile, serr := wk.SideChannel.File()
			if serr != nil {
				return nil, ErrorSpawnFailed.Error(serr)
			}
			wp.SideChannelFd = nextFd
			extraFiles = append(extraFiles, sideFile)
			nextFd++
		}

		payload.Workers = append(payload.Workers, wp)
	}

	body, eerr := Encode(payload)
	if eerr != nil {
		return nil, eerr
	}

	cmd := exec.Command(binaryPath, append([]string{"master", "--upgrade-fd", "3"}, extraArgs...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = extraFiles

	if serr := cmd.Start(); serr != nil {
		return nil, ErrorSpawnFailed.Error(serr)
	}

	go func() {
		_, _ = w.Write(body)
		_ = w.Close()
	}()
	_ = r.Close()
	for _, f := range extraFiles[1:] {
		_ = f.Close()
	}

	return cmd.Process, nil
}
