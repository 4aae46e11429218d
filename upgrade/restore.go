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
	"io"
	"net"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/flowgate/flowgate/command"
	. "github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/master"
	"github.com/flowgate/flowgate/routing"
	"github.com/flowgate/flowgate/worker"
)

// ReadPayload reads and decodes the MasterPayload written down fd by the
// predecessor master, per SpawnSuccessor's ExtraFiles[0] placement.
func ReadPayload(fd int) (MasterPayload, Error) {
	f := os.NewFile(uintptr(fd), "upgrade-payload")
	defer f.Close()

	body, rerr := io.ReadAll(f)
	if rerr != nil {
		return MasterPayload{}, ErrorPayloadDecode.Error(rerr)
	}
	return Decode(body)
}

// Restore rebuilds a *master.Master from payload: the routing table is
// loaded verbatim from its snapshot, the worker-id sequence resumes where
// the predecessor left it, and each WorkerPayload's inherited fds become
// that worker's command channel and side channel, with no process
// respawned and no listening socket ever closed.
func Restore(payload MasterPayload, log *logrus.Entry) (*master.Master, Error) {
	m := master.New(log)
	m.Routes = routing.LoadSnapshot(payload.Routing)
	m.Workers = worker.NewTable(payload.NextWorkerID)

	for _, wp := range payload.Workers {
		chConn, cerr := fileToUnixConn(wp.ChannelFd, "upgrade-channel")
		if cerr != nil {
			return nil, ErrorSpawnFailed.Error(cerr)
		}
		ch := command.NewChannel(chConn)

		var sideConn *net.UnixConn
		if wp.SideChannelFd >= 0 {
			sideConn, cerr = fileToUnixConn(wp.SideChannelFd, "upgrade-side-channel")
			if cerr != nil {
				return nil, ErrorSpawnFailed.Error(cerr)
			}
		}

		w := worker.New(wp.ID, wp.Pid, ch, sideConn, log)
		m.Workers.Add(w)
		go master.PumpWorkerAnswers(m, ch, wp.ID)
	}

	return m, nil
}

func fileToUnixConn(fd int, name string) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), name)
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UnixConn), nil
}
