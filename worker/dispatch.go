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

package worker

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/flowgate/flowgate/command"
	"github.com/flowgate/flowgate/routing"
)

// Runtime bundles everything a worker process's command-handling loop
// needs to answer an order from the master: the event loop driving this
// process's sessions and the side channel used for listener handoff
// during a worker-binary upgrade.
type Runtime struct {
	Loop        *Loop
	SideChannel *net.UnixConn
	Log         *logrus.Entry
}

// HandleOrder applies one order from the master to this worker's own
// ConfigState replica, mirroring master.Master.mutate's switch so the two
// processes' routing tables never diverge in what each Kind means.
// KindUpgradeWorker starts hand-off of this worker's listeners to its
// successor over SideChannel; KindSoftStop/KindHardStop stop the loop
// after the current iteration.
func (rt *Runtime) HandleOrder(o command.Order) command.Answer {
	switch o.Kind {
	case command.KindAddHTTPFront:
		if err := rt.Loop.Routes.AddHTTPFront(o.Host, o.Path, o.Port, o.ApplicationID); err != nil {
			return command.Answer{RequestID: o.RequestID, Status: command.StatusError, Reason: err.Error()}
		}
	case command.KindRemoveHTTPFront:
		rt.Loop.Routes.RemoveHTTPFront(o.Host, o.Path, o.Port)
	case command.KindAddTLSFront:
		front := routing.TLSFront{ApplicationID: o.ApplicationID, CertFile: o.CertFile, KeyFile: o.KeyFile}
		if err := rt.Loop.Routes.AddTLSFront(o.Host, o.Path, o.Port, front); err != nil {
			return command.Answer{RequestID: o.RequestID, Status: command.StatusError, Reason: err.Error()}
		}
	case command.KindRemoveTLSFront:
		rt.Loop.Routes.RemoveTLSFront(o.Host, o.Path, o.Port)
	case command.KindAddBackend:
		rt.Loop.Routes.AddBackend(o.ApplicationID, o.IP, o.Port)
		if o.StickySession || o.SendProxyProtocol {
			rt.Loop.Routes.SetApplication(o.ApplicationID, routing.Policy{StickySession: o.StickySession, SendProxyProtocol: o.SendProxyProtocol})
		}
	case command.KindRemoveBackend:
		rt.Loop.Routes.RemoveBackend(o.ApplicationID, o.IP, o.Port)
	case command.KindUpgradeWorker:
		if rt.SideChannel != nil {
			if err := rt.Loop.SendListeners(rt.SideChannel); err != nil {
				return command.Answer{RequestID: o.RequestID, Status: command.StatusError, Reason: err.Error()}
			}
		}
	case command.KindSoftStop, command.KindHardStop:
		rt.Loop.Stop()
	case command.KindListState, command.KindDumpState:
		return command.Answer{RequestID: o.RequestID, Status: command.StatusOk, State: rt.Loop.Routes.Snapshot()}
	}
	return command.Answer{RequestID: o.RequestID, Status: command.StatusOk}
}

// Serve reads orders off ch until it closes, answering each through
// HandleOrder. It runs on its own goroutine alongside the Loop's Run, the
// same split the master process uses between CommandServer.Serve and
// each worker's PumpWorkerAnswers.
func (rt *Runtime) Serve(ch *command.Channel) {
	for {
		order, rerr := ch.RecvOrder()
		if rerr != nil {
			return
		}
		ans := rt.HandleOrder(order)
		if serr := ch.SendAnswer(ans); serr != nil && rt.Log != nil {
			rt.Log.WithError(serr).Warn("failed to answer master order")
		}
	}
}
