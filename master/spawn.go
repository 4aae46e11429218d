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

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/flowgate/flowgate/command"
	. "github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/worker"
)

// SpawnWorker forks and execs a copy of the running binary in "worker"
// mode, handing it one end of a freshly opened command channel and a
// side-channel fd for listener handoff over ExtraFiles: os/exec's
// ExtraFiles already does the fd-stays-open-across-exec bookkeeping the
// original mio-based implementation does by hand, so the proxy's
// process-spawn step gets to stay ordinary Go.
//
// id is the worker id assigned by the caller's worker.Table; it is passed
// on the command line so the child can identify itself in logs before it
// has received any config over the channel.
func SpawnWorker(id uint32, binaryPath string, extraArgs []string, log *logrus.Entry) (*worker.Worker, Error) {
	masterEnd, workerEnd, perr := command.Pair()
	if perr != nil {
		return nil, ErrorSpawnFailed.Error(perr)
	}

	sideA, sideB, serr := command.Pair()
	if serr != nil {
		_ = masterEnd.Close()
		_ = workerEnd.Close()
		return nil, ErrorSpawnFailed.Error(serr)
	}

	workerFile, wferr := workerEnd.File()
	if wferr != nil {
		return nil, ErrorSpawnFailed.Error(wferr)
	}
	sideFile, sferr := sideB.File()
	if sferr != nil {
		return nil, ErrorSpawnFailed.Error(sferr)
	}

	args := append([]string{"worker", "--id", fmt.Sprintf("%d", id), "--channel-fd", "3", "--side-channel-fd", "4"}, extraArgs...)
	cmd := exec.Command(binaryPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{workerFile, sideFile}

	if serr := cmd.Start(); serr != nil {
		return nil, ErrorSpawnFailed.Error(serr)
	}
	_ = workerFile.Close()
	_ = sideFile.Close()
	_ = workerEnd.Close()
	_ = sideB.Close()

	w := worker.New(id, cmd.Process.Pid, masterEnd, sideA.UnixConn(), log)

	hc := worker.NewHCLogger(log, fmt.Sprintf("worker.%d", id))
	hc.Info("spawned", "pid", cmd.Process.Pid)

	go func() {
		werr := cmd.Wait()
		w.SetState(worker.Stopped)
		if werr != nil {
			hc.Warn("exited", "pid", cmd.Process.Pid, "error", werr)
		} else {
			hc.Info("exited", "pid", cmd.Process.Pid)
		}
	}()
	return w, nil
}
