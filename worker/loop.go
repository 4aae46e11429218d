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

// Package worker implements the per-process proxy engine: an epoll event
// loop that accepts front connections, drives each one's session.Protocol
// state machine in the fixed per-iteration order named in §4.3, and
// retires sessions whose timers expire. The same package also holds the
// master-side Worker supervision record, since both halves share the
// ListenerHandoff and command-channel vocabulary that crosses the
// master/worker process boundary.
package worker

import (
	"container/heap"
	"crypto/tls"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	liberr "github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/routing"
	"github.com/flowgate/flowgate/session"

	"github.com/sirupsen/logrus"

	"github.com/flowgate/flowgate/metrics"
)

// noToken marks the absence of a registered leg (a session with no back
// socket yet, or a timer entry that should not release anything), since
// 0 is a legitimate token index once allocation has run.
const noToken token = ^token(0)

// token identifies one epoll-registered fd. Session fronts and backs get
// distinct tokens so the loop can tell which leg raised an event without
// a type switch on the fd; the free list lets retired tokens' slots be
// reused instead of growing the table without bound across the worker's
// lifetime.
type token uint64

type tokenKind int

const (
	kindListener tokenKind = iota
	kindFront
	kindBack
)

type tokenEntry struct {
	kind     tokenKind
	fd       int
	listener *registeredListener
	sess     *session.Session
	inUse    bool
}

type registeredListener struct {
	ln        *net.TCPListener
	proto     ListenerProto
	port      int
	tlsConfig *tls.Config
	certFile  string
	keyFile   string
}

// timerItem is one entry in the loop's deadline min-heap, pushed when a
// session is registered. The session moves its own deadline (via
// touchDeadline) every time its phase changes; an entry that pops before
// the session's current Deadline is re-pushed at that deadline rather than
// fired, since heap.Fix on every touch would be no cheaper.
type timerItem struct {
	deadline time.Time
	tok      token
	epoch    uint64
}

type timerHeap []timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerItem)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Loop is one worker process's event loop: a single epoll instance
// dispatching to sessions and listeners registered under it. A Loop is
// not safe for concurrent use; the worker binary runs exactly one per
// process, matching the single-threaded-reactor model named in §4.
type Loop struct {
	epfd   int
	tokens []tokenEntry
	free   []token
	epoch  []uint64
	timers timerHeap

	Routes     *routing.ConfigState
	Picker     *routing.Picker
	MetricsReg *metrics.Registry
	Log        *logrus.Entry

	BufferSize int

	closing bool
}

// NewLoop creates the epoll instance backing a fresh Loop.
func NewLoop(routes *routing.ConfigState, picker *routing.Picker, reg *metrics.Registry, log *logrus.Entry) (*Loop, liberr.Error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, ErrorSpawnFailed.liberr.Error(err)
	}
	return &Loop{
		epfd:       fd,
		Routes:     routes,
		Picker:     picker,
		MetricsReg: reg,
		Log:        log,
		BufferSize: 16 * 1024,
	}, nil
}

func (l *Loop) alloc(e tokenEntry) token {
	e.inUse = true
	if n := len(l.free); n > 0 {
		tok := l.free[n-1]
		l.free = l.free[:n-1]
		l.tokens[tok] = e
		l.epoch[tok]++
		return tok
	}
	l.tokens = append(l.tokens, e)
	l.epoch = append(l.epoch, 0)
	return token(len(l.tokens) - 1)
}

func (l *Loop) release(tok token) {
	l.tokens[tok] = tokenEntry{}
	l.free = append(l.free, tok)
}

// rawFd extracts the kernel file descriptor backing conn. Every socket
// type the loop registers (*net.TCPConn, *net.TCPListener) implements
// syscall.Conn.
func rawFd(conn syscall.Conn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	cerr := raw.Control(func(f uintptr) { fd = int(f) })
	if cerr != nil {
		return -1, cerr
	}
	return fd, nil
}

// RegisterListener adds ln to the epoll set; newly accepted connections
// arrive as Readable events on the listener's own token. tlsConfig is nil
// for a plain HTTP listener and non-nil for a TLS front, selecting which
// protocol chain Accept builds for connections off this listener.
// certFile/keyFile are recorded alongside tlsConfig purely so a later
// Listeners snapshot can describe this front without re-parsing the
// certificate; the new worker rebuilds its own tls.Config from them after
// an upgrade handoff rather than receiving tlsConfig itself.
func (l *Loop) RegisterListener(ln *net.TCPListener, proto ListenerProto, port int, tlsConfig *tls.Config, certFile, keyFile string) liberr.Error {
	fd, ferr := rawFd(ln)
	if ferr != nil {
		return ErrorSpawnFailed.liberr.Error(ferr)
	}
	tok := l.alloc(tokenEntry{kind: kindListener, fd: fd, listener: &registeredListener{ln: ln, proto: proto, port: port, tlsConfig: tlsConfig, certFile: certFile, keyFile: keyFile}})
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	putToken(&ev, tok)
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		l.release(tok)
		return ErrorSpawnFailed.liberr.Error(err)
	}
	return nil
}

// Listeners returns a handoff descriptor for every listener currently
// registered, used to build an upgrade payload: the new worker's Accept
// loop needs the same (proto, addr, port, cert/key) tuple to rebuild each
// front after receiving its fd over SendListenerFd.
func (l *Loop) Listeners() []ListenerHandoff {
	out := make([]ListenerHandoff, 0)
	for _, e := range l.tokens {
		if !e.inUse || e.kind != kindListener {
			continue
		}
		out = append(out, ListenerHandoff{
			Fd:       e.fd,
			Proto:    e.listener.proto,
			Addr:     e.listener.ln.Addr().String(),
			Port:     e.listener.port,
			CertFile: e.listener.certFile,
			KeyFile:  e.listener.keyFile,
		})
	}
	return out
}

func putToken(ev *unix.EpollEvent, tok token) {
	ev.Pad = int32(tok)
}

func tokenOf(ev *unix.EpollEvent) token {
	return token(ev.Pad)
}

// registerSession adds both legs of s currently open (front always, back
// if OpenBackend already succeeded) to the epoll set.
func (l *Loop) registerSession(s *session.Session) liberr.Error {
	ffd, ferr := rawFd(s.Front)
	if ferr != nil {
		return ErrorSpawnFailed.liberr.Error(ferr)
	}
	ftok := l.alloc(tokenEntry{kind: kindFront, fd: ffd, sess: s})
	if err := l.epollAdd(ffd, ftok, s.FrontReadiness.Interest); err != nil {
		l.release(ftok)
		return err
	}
	l.pushTimer(s, ftok)

	if s.Back != nil {
		if err := l.registerBack(s, ftok); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) registerBack(s *session.Session, frontTok token) liberr.Error {
	bfd, berr := rawFd(s.Back)
	if berr != nil {
		return ErrorSpawnFailed.liberr.Error(berr)
	}
	btok := l.alloc(tokenEntry{kind: kindBack, fd: bfd, sess: s})
	if err := l.epollAdd(bfd, btok, s.BackReadiness.Interest); err != nil {
		l.release(btok)
		return err
	}
	return nil
}

func (l *Loop) epollAdd(fd int, tok token, interest uint32) liberr.Error {
	ev := unix.EpollEvent{Events: interestToEpoll(interest), Fd: int32(fd)}
	putToken(&ev, tok)
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return ErrorSpawnFailed.liberr.Error(err)
	}
	return nil
}

func interestToEpoll(interest uint32) uint32 {
	var ev uint32
	if interest&session.Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if interest&session.Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (l *Loop) pushTimer(s *session.Session, tok token) {
	heap.Push(&l.timers, timerItem{deadline: s.Deadline(), tok: tok, epoch: l.epoch[tok]})
}

// Accept services one Readable event on a listener token, looping
// non-blocking Accept calls until the listener reports would-block, per
// the usual edge-triggered accept-loop idiom.
func (l *Loop) Accept(rl *registeredListener) {
	for {
		conn, err := rl.ln.Accept()
		if err != nil {
			return
		}
		var initial session.Protocol
		if rl.proto == ProtoTLS {
			handshake := session.NewTlsHandshake(rl.tlsConfig, l.MetricsReg, func(*tls.Conn) session.Protocol {
				return session.NewHttp()
			})
			initial = session.NewExpectProxyProtocol(handshake)
		} else {
			initial = session.NewExpectProxyProtocol(session.NewHttp())
		}
		s := session.New(conn, l.BufferSize, initial, l.Routes, l.Picker, l.Log)
		s.ListenerPort = rl.port
		s.MetricsReg = l.MetricsReg
		if err := l.registerSession(s); err != nil {
			s.Close()
		}
	}
}

// Step runs the driver for one session's Readable/Writable events,
// applying §4.3's fixed ordering: front read, back write (implicit inside
// the Http/Pipe handlers' own writes), back read, front write. Protocol
// handlers already encode this ordering internally; Step calls OnReadable
// once when either leg is signalled readable and acts on the
// SessionResult. It does not call OnWritable.
func (l *Loop) Step(s *session.Session, frontTok, backTok token) {
	if s.FrontReadiness.Want(session.Readable) || (s.Back != nil && s.BackReadiness.Want(session.Readable)) {
		pr, sr := s.Protocol.OnReadable(s)
		l.apply(s, pr, sr, frontTok, backTok)
	}
}

func (l *Loop) apply(s *session.Session, pr session.ProtocolResult, sr session.SessionResult, frontTok, backTok token) {
	if pr == session.Upgrade {
		if up, ok := s.Protocol.(session.Upgrader); ok {
			s.Upgrade(up.Next())
		}
	}

	switch sr {
	case session.SessionClose:
		l.retire(s, frontTok, backTok)
		return
	case session.SessionCloseBackend:
		s.CloseBackend()
		if backTok != noToken {
			l.release(backTok)
		}
	case session.SessionConnectBackend, session.SessionReconnectBackend:
		if sr == session.SessionReconnectBackend {
			s.CloseBackend()
			if backTok != noToken {
				l.release(backTok)
			}
		}
		if operr := s.OpenBackend(); operr != nil {
			l.retire(s, frontTok, backTok)
			return
		}
	}

	// A handler (most commonly Http.route) may have opened the back
	// socket directly rather than via SessionConnectBackend; either way,
	// a session with a live back socket not yet in the epoll set needs
	// registering now so Pipe's response-reading leg ever wakes up.
	if s.Back != nil && backTok == noToken {
		_ = l.registerBack(s, frontTok)
	}
}

func (l *Loop) retire(s *session.Session, frontTok, backTok token) {
	s.Close()
	if frontTok != noToken {
		l.release(frontTok)
	}
	if backTok != noToken {
		l.release(backTok)
	}
}

// Poll blocks for up to timeout for epoll events, merges them into the
// matching session's Readiness, and returns the distinct sessions that
// need a Step call this iteration.
func (l *Loop) Poll(timeout time.Duration) ([]polled, liberr.Error) {
	events := make([]unix.EpollEvent, 256)
	ms := int(timeout / time.Millisecond)
	n, err := unix.EpollWait(l.epfd, events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, ErrorSpawnFailed.liberr.Error(err)
	}

	seen := map[*session.Session]*polled{}
	var order []*session.Session

	for i := 0; i < n; i++ {
		tok := tokenOf(&events[i])
		if int(tok) >= len(l.tokens) {
			continue
		}
		entry := l.tokens[tok]
		if !entry.inUse {
			continue
		}

		if entry.kind == kindListener {
			l.Accept(entry.listener)
			continue
		}

		bits := epollToInterest(events[i].Events)
		if entry.kind == kindFront {
			entry.sess.FrontReadiness.Merge(bits)
		} else {
			entry.sess.BackReadiness.Merge(bits)
		}

		p, ok := seen[entry.sess]
		if !ok {
			p = &polled{sess: entry.sess, frontTok: noToken, backTok: noToken}
			seen[entry.sess] = p
			order = append(order, entry.sess)
		}
		if entry.kind == kindFront {
			p.frontTok = tok
		} else {
			p.backTok = tok
		}
	}

	out := make([]polled, 0, len(order))
	for _, s := range order {
		out = append(out, *seen[s])
	}
	return out, nil
}

// polled is one session due for a Step call after a Poll pass, carrying
// the tokens Step needs to release on SessionClose.
type polled struct {
	sess     *session.Session
	frontTok token
	backTok  token
}

func epollToInterest(ev uint32) uint32 {
	var bits uint32
	if ev&unix.EPOLLIN != 0 {
		bits |= session.Readable
	}
	if ev&unix.EPOLLOUT != 0 {
		bits |= session.Writable
	}
	if ev&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		bits |= session.Readable
	}
	return bits
}

// ExpireTimers pops every timer whose deadline has passed, invoking
// OnTimeout on the owning session unless it has since been retired (a
// stale heap entry, detected by comparing its recorded epoch against the
// token's current one) or its deadline has since moved forward, in which
// case the entry is re-pushed at the new deadline.
func (l *Loop) ExpireTimers(now time.Time) {
	for l.timers.Len() > 0 {
		top := l.timers[0]
		if top.deadline.After(now) {
			return
		}
		heap.Pop(&l.timers)

		if int(top.tok) >= len(l.tokens) || l.epoch[top.tok] != top.epoch {
			continue
		}
		entry := l.tokens[top.tok]
		if !entry.inUse || entry.kind != kindFront {
			continue
		}
		if d := entry.sess.Deadline(); d.After(now) {
			heap.Push(&l.timers, timerItem{deadline: d, tok: top.tok, epoch: top.epoch})
			continue
		}
		pr, sr := entry.sess.Protocol.OnTimeout(entry.sess)
		l.apply(entry.sess, pr, sr, top.tok, noToken)
	}
}

// Close releases the epoll fd. It does not close registered listeners or
// sessions; callers that own those close them independently.
func (l *Loop) Close() error {
	return unix.Close(l.epfd)
}

// Run drives the loop until Stop is called: poll, step every session the
// poll woke, expire timers, repeat. pollInterval bounds how long each
// EpollWait call blocks, which in turn bounds how late a timer can fire
// past its deadline.
func (l *Loop) Run(pollInterval time.Duration) liberr.Error {
	for !l.closing {
		woken, perr := l.Poll(pollInterval)
		if perr != nil {
			return perr
		}
		for _, p := range woken {
			l.Step(p.sess, p.frontTok, p.backTok)
		}
		l.ExpireTimers(time.Now())
	}
	return nil
}

// Stop requests Run return after its current iteration.
func (l *Loop) Stop() {
	l.closing = true
}
