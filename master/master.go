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

// Package master implements the master process side of the command
// protocol: it holds the authoritative routing.ConfigState, validates and
// applies admin orders, fans each one out to every Running worker, and
// aggregates their answers back into a single reply to the admin
// connection that issued the order, per §4.5.
package master

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/flowgate/flowgate/command"
	. "github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/routing"
	"github.com/flowgate/flowgate/worker"
)

// aggregate tracks one admin order's fan-out: the set of worker ids it
// was sent to and which of them have answered, plus the admin-facing
// channel the terminal answer gets written back to.
type aggregate struct {
	order     command.Order
	awaiting  map[uint32]bool
	admin     *command.Channel
	sawError  bool
	reason    string
}

// Master owns the replicated configuration and the worker table, and is
// the single point every admin order and every worker answer passes
// through. The command server dispatches orders to it one at a time
// across all admin connections; Master itself holds a mutex only to
// protect the aggregate map against the worker-answer reader goroutines
// that run one per worker channel.
type Master struct {
	mu sync.Mutex

	Routes  *routing.ConfigState
	Workers *worker.Table
	Log     *logrus.Entry

	pending map[string]*aggregate
}

// New returns a Master with an empty routing table and worker table
// starting ids at 1 (worker id 0 is reserved to mean "no worker" in
// logs and metrics labels).
func New(log *logrus.Entry) *Master {
	return &Master{
		Routes:  routing.NewConfigState(),
		Workers: worker.NewTable(1),
		Log:     log,
		pending: make(map[string]*aggregate),
	}
}

// ValidateOrder rejects malformed orders (an unknown kind, or a missing
// field the kind requires) before any state is mutated or any worker
// contacted. It does not read or mutate Routes, so it does not detect
// conflicts; a conflicting front is rejected by the routing table inside
// Apply's mutate step, still before any worker is contacted.
func ValidateOrder(o command.Order) Error {
	switch o.Kind {
	case command.KindAddHTTPFront, command.KindRemoveHTTPFront:
		if o.Host == "" || o.Port == 0 {
			return ErrorMissingField.Error(nil)
		}
	case command.KindAddTLSFront, command.KindRemoveTLSFront:
		if o.Host == "" || o.Port == 0 {
			return ErrorMissingField.Error(nil)
		}
		if o.Kind == command.KindAddTLSFront && (o.CertFile == "" || o.KeyFile == "") {
			return ErrorMissingField.Error(nil)
		}
	case command.KindAddBackend, command.KindRemoveBackend:
		if o.ApplicationID == "" || o.IP == "" || o.Port == 0 {
			return ErrorMissingField.Error(nil)
		}
	case command.KindSoftStop, command.KindHardStop, command.KindUpgradeMaster, command.KindUpgradeWorker:
		// no required fields beyond RequestID, already guaranteed by the
		// command server before ValidateOrder is called.
	case command.KindListState, command.KindDumpState, command.KindLoadState:
		// no required fields.
	default:
		return ErrorUnknownOrderKind.Error(nil)
	}
	return nil
}

// Apply validates o, mutates Routes if it is a config-changing order, and
// begins fanning it out to every Running worker, registering an
// aggregate keyed by o.RequestID so answers can be matched back to admin.
// admin is the channel the eventual terminal Answer is written to; it may
// be nil when Apply is called from the worker-upgrade path, which
// synthesizes its own completion handling instead.
func (m *Master) Apply(o command.Order, admin *command.Channel) Error {
	if o.RequestID == "" {
		o.RequestID = uuid.NewString()
	}
	if verr := ValidateOrder(o); verr != nil {
		return verr
	}

	m.mu.Lock()
	if _, dup := m.pending[o.RequestID]; dup {
		m.mu.Unlock()
		return ErrorDuplicateRequestID.Error(nil)
	}
	m.mu.Unlock()

	if merr := m.mutate(o); merr != nil {
		return merr
	}

	running := m.Workers.Running()
	if len(running) == 0 {
		if admin != nil {
			_ = admin.SendAnswer(command.Answer{RequestID: o.RequestID, Status: command.StatusOk})
		}
		return nil
	}

	agg := &aggregate{order: o, awaiting: make(map[uint32]bool, len(running)), admin: admin}
	for _, w := range running {
		agg.awaiting[w.ID] = true
	}

	m.mu.Lock()
	m.pending[o.RequestID] = agg
	m.mu.Unlock()

	for _, w := range running {
		if serr := w.Send(o); serr != nil {
			m.recordAnswer(w.ID, command.Answer{RequestID: o.RequestID, Status: command.StatusError, Reason: serr.Error()})
		}
	}
	return nil
}

// mutate applies a config-changing order to Routes; non-config orders are
// a no-op here, handled entirely by fan-out and worker answers.
func (m *Master) mutate(o command.Order) Error {
	switch o.Kind {
	case command.KindAddHTTPFront:
		return m.Routes.AddHTTPFront(o.Host, o.Path, o.Port, o.ApplicationID)
	case command.KindRemoveHTTPFront:
		m.Routes.RemoveHTTPFront(o.Host, o.Path, o.Port)
	case command.KindAddTLSFront:
		return m.Routes.AddTLSFront(o.Host, o.Path, o.Port, routing.TLSFront{ApplicationID: o.ApplicationID, CertFile: o.CertFile, KeyFile: o.KeyFile})
	case command.KindRemoveTLSFront:
		m.Routes.RemoveTLSFront(o.Host, o.Path, o.Port)
	case command.KindAddBackend:
		m.Routes.AddBackend(o.ApplicationID, o.IP, o.Port)
		if o.StickySession || o.SendProxyProtocol {
			m.Routes.SetApplication(o.ApplicationID, routing.Policy{StickySession: o.StickySession, SendProxyProtocol: o.SendProxyProtocol})
		}
	case command.KindRemoveBackend:
		m.Routes.RemoveBackend(o.ApplicationID, o.IP, o.Port)
	}
	return nil
}

// OnAnswer is called by each worker's answer-reading goroutine. A
// Processing answer is relayed straight to admin without touching the
// aggregate; a terminal answer (Ok or Error) resolves that worker's slot,
// and once every awaited worker has answered, the aggregate itself
// resolves with a single combined terminal answer.
func (m *Master) OnAnswer(workerID uint32, ans command.Answer) {
	if w, ok := m.Workers.Get(workerID); ok {
		w.Resolve(ans.RequestID)
	}

	m.mu.Lock()
	agg, ok := m.pending[ans.RequestID]
	if !ok {
		m.mu.Unlock()
		return
	}

	if !ans.IsTerminal() {
		admin := agg.admin
		m.mu.Unlock()
		if admin != nil {
			_ = admin.SendAnswer(ans)
		}
		return
	}

	delete(agg.awaiting, workerID)
	if ans.Status == command.StatusError {
		agg.sawError = true
		agg.reason = ans.Reason
	}
	done := len(agg.awaiting) == 0
	if done {
		delete(m.pending, ans.RequestID)
	}
	admin := agg.admin
	sawError, reason, reqID := agg.sawError, agg.reason, ans.RequestID
	m.mu.Unlock()

	if done && admin != nil {
		final := command.Answer{RequestID: reqID, Status: command.StatusOk}
		if sawError {
			final = command.Answer{RequestID: reqID, Status: command.StatusError, Reason: reason}
		}
		_ = admin.SendAnswer(final)
	}
}

// recordAnswer is OnAnswer's synchronous counterpart for a worker.Send
// failure discovered inline rather than delivered over the channel.
func (m *Master) recordAnswer(workerID uint32, ans command.Answer) {
	m.OnAnswer(workerID, ans)
}
