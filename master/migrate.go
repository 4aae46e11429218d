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

package master

import (
	"encoding/json"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/flowgate/flowgate/command"
	. "github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/worker"
)

// UpgradeWorker replaces oldID's worker process with a freshly spawned one
// without ever unbinding a listening socket: it spawns the replacement,
// brokers its listener fds across from the old worker over the two
// workers' side channels, then asks the old worker to drain and exit. The
// new worker's id is returned so the caller can track its answers.
func (m *Master) UpgradeWorker(oldID uint32, binaryPath string, extraArgs []string, log *logrus.Entry) (uint32, Error) {
	oldW, ok := m.Workers.Get(oldID)
	if !ok {
		return 0, ErrorUnknownWorker.Error(nil)
	}

	newID := m.Workers.NextID()
	newW, serr := SpawnWorker(newID, binaryPath, extraArgs, log)
	if serr != nil {
		return 0, serr
	}
	m.Workers.Add(newW)
	go PumpWorkerAnswers(m, newW.Channel, newID)

	if err := oldW.Send(command.Order{Kind: command.KindUpgradeWorker, WorkerID: newID}); err != nil {
		return newID, err
	}

	if err := m.MigrateListeners(oldID, newID); err != nil {
		return newID, err
	}

	if err := oldW.Send(command.Order{Kind: command.KindSoftStop}); err != nil {
		return newID, err
	}
	oldW.SetState(worker.Stopping)

	return newID, nil
}

// MigrateListeners reads every listener fd oldID's worker sends over its
// side channel and replays it onto newID's, closing its own brokered copy
// once the new worker has its own. The two worker processes never hold a
// socket to each other; only the master does, to both.
func (m *Master) MigrateListeners(oldID, newID uint32) Error {
	oldW, ok := m.Workers.Get(oldID)
	if !ok || oldW.SideChannel == nil {
		return ErrorUnknownWorker.Error(nil)
	}
	newW, ok := m.Workers.Get(newID)
	if !ok || newW.SideChannel == nil {
		return ErrorUnknownWorker.Error(nil)
	}

	handoffs, rerr := worker.ReceiveListeners(oldW.SideChannel)
	if rerr != nil {
		return rerr
	}

	for _, h := range handoffs {
		meta, merr := json.Marshal(h)
		if merr != nil {
			return ErrorSpawnFailed.Error(merr)
		}
		if serr := worker.SendListenerFd(newW.SideChannel, h.Fd, meta); serr != nil {
			return serr
		}
		_ = syscall.Close(h.Fd)
	}
	return nil
}
