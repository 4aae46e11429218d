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

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flowgate/flowgate/command"
	liberr "github.com/flowgate/flowgate/errors"
)

// RunState is the master's view of one worker process's lifecycle, per
// §4.5's worker table.
type RunState int

const (
	Running RunState = iota
	Stopping
	Stopped
	NotAnswering
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case NotAnswering:
		return "not_answering"
	default:
		return "unknown"
	}
}

// PendingRequest tracks one in-flight order forwarded to this worker,
// keyed by RequestID so the master can match the eventual Answer back to
// the admin connection that asked for it.
type PendingRequest struct {
	RequestID string
	SentAt    time.Time
}

// Worker is the master's supervision record for one spawned worker
// process: its numeric id (stable across a hot upgrade, reused by the
// new process), OS pid, run state, command channel and the requests
// currently awaiting an answer from it.
type Worker struct {
	mu sync.Mutex

	ID    uint32
	Pid   int
	State RunState

	Channel *command.Channel

	// SideChannel is the master's end of the Unix-domain socket over which
	// listening-socket fds are handed to this worker at spawn time and,
	// during an upgrade, handed onward to its successor. It is nil for a
	// worker reconstructed purely from upgrade-payload bookkeeping, where
	// only the fd number (SideChannelFd) survives the round trip.
	SideChannel   *net.UnixConn
	SideChannelFd int

	pending map[string]PendingRequest

	StartedAt time.Time
	Log       *logrus.Entry
}

// New returns a Worker in the Running state, wrapping an already-open
// command channel to the freshly spawned process. sideChannel may be nil
// when the caller has no fd-passing conn for this worker (tests, or a
// worker reconstructed from upgrade bookkeeping where only the fd number
// survives).
func New(id uint32, pid int, ch *command.Channel, sideChannel *net.UnixConn, log *logrus.Entry) *Worker {
	fd := -1
	if sideChannel != nil {
		if raw, err := sideChannel.SyscallConn(); err == nil {
			_ = raw.Control(func(f uintptr) { fd = int(f) })
		}
	}
	return &Worker{
		ID:            id,
		Pid:           pid,
		State:         Running,
		Channel:       ch,
		SideChannel:   sideChannel,
		SideChannelFd: fd,
		pending:       make(map[string]PendingRequest),
		StartedAt:     time.Now(),
		Log:           log,
	}
}

// Send forwards order to the worker and records it as pending until the
// matching Answer arrives.
func (w *Worker) Send(order command.Order) liberr.Error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.State != Running && w.State != Stopping {
		return ErrorNotRunning.Error(nil)
	}

	if err := w.Channel.SendOrder(order); err != nil {
		w.State = NotAnswering
		return err
	}
	w.pending[order.RequestID] = PendingRequest{RequestID: order.RequestID, SentAt: time.Now()}
	return nil
}

// Resolve removes requestID from the pending set, returning whether it
// was still outstanding. The master calls this once it has forwarded a
// terminal Answer on to the admin connection that originated the order.
func (w *Worker) Resolve(requestID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[requestID]; !ok {
		return false
	}
	delete(w.pending, requestID)
	return true
}

// PendingCount reports how many orders are still awaiting an answer from
// this worker, used by the soft-stop drain check.
func (w *Worker) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// SetState transitions the worker's run state, logging every exit from
// Running since that is the state the master's health sweep watches for.
func (w *Worker) SetState(s RunState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.State
	w.State = s
	if prev == Running && s != Running && w.Log != nil {
		w.Log.WithFields(logrus.Fields{"worker_id": w.ID, "pid": w.Pid, "from": prev.String(), "to": s.String()}).Warn("worker state change")
	}
}

// Table is the master's registry of every worker it has spawned, indexed
// by worker id.
type Table struct {
	mu      sync.RWMutex
	workers map[uint32]*Worker
	nextID  uint32
}

// NewTable returns an empty worker table starting ids at startID, which
// the upgrade protocol sets to the predecessor's next-id counter rather
// than restarting from zero.
func NewTable(startID uint32) *Table {
	return &Table{workers: make(map[uint32]*Worker), nextID: startID}
}

// NextID allocates and returns the next worker id, incrementing the
// counter under lock.
func (t *Table) NextID() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	return id
}

// PeekNextID returns the counter's current value without allocating it,
// used to carry the id sequence across an upgrade's old->new handoff so
// the successor master does not restart numbering from zero.
func (t *Table) PeekNextID() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextID
}

// Add registers w under its own ID.
func (t *Table) Add(w *Worker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.workers[w.ID] = w
}

// Remove drops a worker from the table, called once the master has
// observed its process exit.
func (t *Table) Remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.workers, id)
}

// Get looks up a worker by id.
func (t *Table) Get(id uint32) (*Worker, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.workers[id]
	return w, ok
}

// Running returns every worker currently in the Running state, the set
// an order is fanned out to per §4.5.
func (t *Table) Running() []*Worker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Worker, 0, len(t.workers))
	for _, w := range t.workers {
		if w.State == Running {
			out = append(out, w)
		}
	}
	return out
}

// All returns every worker regardless of state.
func (t *Table) All() []*Worker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Worker, 0, len(t.workers))
	for _, w := range t.workers {
		out = append(out, w)
	}
	return out
}
