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
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/flowgate/flowgate/command"
	. "github.com/flowgate/flowgate/errors"
)

// CommandServer listens on a Unix domain socket for admin connections
// (the flowgate ctl CLI), one goroutine per connection, each driving a
// blocking command.Channel through Master.Apply. Orders are dispatched one
// at a time across all connections.
type CommandServer struct {
	path     string
	listener *net.UnixListener
	master   *Master
	log      *logrus.Entry

	// dispatch serializes order handling across admin connections.
	dispatch sync.Mutex

	// onUpgradeMaster and onUpgradeWorker, when set via SetUpgradeHooks,
	// intercept KindUpgradeMaster/KindUpgradeWorker before they would
	// otherwise fall through to Apply's generic per-worker fan-out: both
	// kinds name a process-lifecycle action the master performs itself
	// (upgrade.SpawnSuccessor, Master.UpgradeWorker) rather than a config
	// change every running worker needs to mirror.
	onUpgradeMaster func() Error
	onUpgradeWorker func(workerID uint32) Error
}

// SetUpgradeHooks wires the command server to the binary's own upgrade
// entry points. It is separate from NewCommandServer because both hooks
// close over the running binary's path and the master's own config,
// neither of which the master package otherwise needs to know about.
func (s *CommandServer) SetUpgradeHooks(onUpgradeMaster func() Error, onUpgradeWorker func(workerID uint32) Error) {
	s.onUpgradeMaster = onUpgradeMaster
	s.onUpgradeWorker = onUpgradeWorker
}

// NewCommandServer removes any stale socket file at path and binds a
// fresh listener. A stale path is expected on a clean restart after an
// unclean shutdown; bind failure for any other reason is returned as-is.
func NewCommandServer(path string, m *Master, log *logrus.Entry) (*CommandServer, Error) {
	_ = os.Remove(path)

	addr, rerr := net.ResolveUnixAddr("unix", path)
	if rerr != nil {
		return nil, ErrorSpawnFailed.Error(rerr)
	}
	ln, lerr := net.ListenUnix("unix", addr)
	if lerr != nil {
		return nil, ErrorSpawnFailed.Error(lerr)
	}
	return &CommandServer{path: path, listener: ln, master: m, log: log}, nil
}

// Serve accepts connections until the listener is closed.
func (s *CommandServer) Serve() {
	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			return
		}
		go s.handle(command.NewChannel(conn))
	}
}

// Close stops accepting new admin connections and unlinks the socket
// file.
func (s *CommandServer) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *CommandServer) handle(ch *command.Channel) {
	defer ch.Close()
	for {
		order, rerr := ch.RecvOrder()
		if rerr != nil {
			return
		}

		s.dispatch.Lock()
		var aerr Error
		switch order.Kind {
		case command.KindUpgradeMaster:
			if s.onUpgradeMaster != nil {
				aerr = s.onUpgradeMaster()
			} else {
				aerr = ErrorUnknownOrderKind.Error(nil)
			}
		case command.KindUpgradeWorker:
			if s.onUpgradeWorker != nil {
				aerr = s.onUpgradeWorker(order.WorkerID)
			} else {
				aerr = ErrorUnknownOrderKind.Error(nil)
			}
		default:
			aerr = s.master.Apply(order, ch)
		}

		if aerr != nil {
			_ = ch.SendAnswer(command.Answer{RequestID: order.RequestID, Status: command.StatusError, Reason: aerr.Error()})
		} else if order.Kind == command.KindUpgradeMaster || order.Kind == command.KindUpgradeWorker {
			_ = ch.SendAnswer(command.Answer{RequestID: order.RequestID, Status: command.StatusOk})
		}
		s.dispatch.Unlock()
	}
}

// PumpWorkerAnswers runs for the lifetime of w's command channel, reading
// every Answer it sends and routing each through Master.OnAnswer. The
// master spawns one of these per worker right after registering it in
// the worker table.
func PumpWorkerAnswers(m *Master, w *command.Channel, workerID uint32) {
	for {
		ans, rerr := w.RecvAnswer()
		if rerr != nil {
			return
		}
		m.OnAnswer(workerID, ans)
	}
}
