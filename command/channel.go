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

package command

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	. "github.com/flowgate/flowgate/errors"
)

// Default buffer sizes named in §6: the channel starts at
// DefaultBufferSize and is never allowed to grow past
// DefaultMaxBufferSize.
const (
	DefaultBufferSize    = 1_000_000
	DefaultMaxBufferSize = 2_000_000
)

// Mode selects whether Read blocks the calling goroutine until a full
// frame is available (Blocking, used at bootstrap and during the upgrade
// handoff) or returns ErrorWouldBlock immediately when none is buffered
// yet (NonBlocking, used by the steady-state event loop so a stalled
// admin connection never stalls the worker).
type Mode int

const (
	Blocking Mode = iota
	NonBlocking
)

// Channel is a framed message transport over a Unix domain socket: each
// frame is a JSON object immediately followed by a single 0x00 byte.
type Channel struct {
	conn    *net.UnixConn
	mode    Mode
	maxSize int

	pending []byte

	// writeMu serializes WriteMessage calls: a worker's command-handling
	// goroutine and its answer-relaying goroutine can both write answers
	// on the same channel, and a stream socket interleaves unsynchronized
	// concurrent writes into a corrupt frame.
	writeMu sync.Mutex
}

// NewChannel wraps conn, starting in Blocking mode with the default
// buffer sizes.
func NewChannel(conn *net.UnixConn) *Channel {
	return &Channel{conn: conn, mode: Blocking, maxSize: DefaultMaxBufferSize, pending: make([]byte, 0, DefaultBufferSize)}
}

// SetMode switches between Blocking and NonBlocking read semantics. It is
// an explicit call, never inferred from context, per §4.4.
func (c *Channel) SetMode(m Mode) {
	c.mode = m
}

// SetMaxBufferSize overrides DefaultMaxBufferSize.
func (c *Channel) SetMaxBufferSize(n int) {
	c.maxSize = n
}

// Close releases the underlying socket.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// File returns a duplicate, blocking-mode *os.File wrapping this
// channel's socket, suitable for exec.Cmd.ExtraFiles: the duplicate
// stays open (and keeps the fd fixed across exec) independently of the
// Channel's own conn, which the caller should close once the child has
// started.
func (c *Channel) File() (*os.File, error) {
	return c.conn.File()
}

// UnixConn exposes the socket backing this channel directly, for the
// side channel use case where the conn carries SCM_RIGHTS-passed fds
// (worker.SendListenerFd/RecvListenerFd) rather than framed JSON.
func (c *Channel) UnixConn() *net.UnixConn {
	return c.conn
}

// Fd returns the raw descriptor number backing this channel without
// duplicating it, for bookkeeping that only needs to remember which fd a
// side channel lives on (e.g. recording it on a worker.Worker record).
func (c *Channel) Fd() (int, error) {
	raw, err := c.conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	if cerr := raw.Control(func(f uintptr) { fd = int(f) }); cerr != nil {
		return -1, cerr
	}
	return fd, nil
}

// WriteMessage serializes v as JSON and writes it followed by the 0x00
// frame terminator.
func (c *Channel) WriteMessage(v interface{}) Error {
	body, err := json.Marshal(v)
	if err != nil {
		return ErrorMalformedFrame.Error(err)
	}
	body = append(body, 0x00)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, werr := c.conn.Write(body); werr != nil {
		return ErrorChannelClosed.Error(werr)
	}
	return nil
}

// ReadMessage returns the next complete frame, unmarshalled into v. In
// NonBlocking mode it returns ErrorWouldBlock rather than blocking when
// no terminator has arrived yet; the caller (the event loop's
// command-handler step) retries on the next readiness event.
func (c *Channel) ReadMessage(v interface{}) Error {
	for {
		if idx := bytes.IndexByte(c.pending, 0x00); idx >= 0 {
			frame := c.pending[:idx]
			c.pending = append([]byte{}, c.pending[idx+1:]...)
			if uerr := json.Unmarshal(frame, v); uerr != nil {
				return ErrorMalformedFrame.Error(uerr)
			}
			return nil
		}

		if len(c.pending) >= c.maxSize {
			return ErrorBufferExceeded.Error(nil)
		}

		if c.mode == NonBlocking {
			_ = c.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
		} else {
			_ = c.conn.SetReadDeadline(time.Time{})
		}

		buf := make([]byte, 65536)
		n, rerr := c.conn.Read(buf)
		if n > 0 {
			c.pending = append(c.pending, buf[:n]...)
			continue
		}
		if rerr != nil {
			if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				return ErrorWouldBlock.Error(nil)
			}
			return ErrorChannelClosed.Error(rerr)
		}
	}
}

// SendOrder is a convenience wrapper writing an Order frame.
func (c *Channel) SendOrder(o Order) Error {
	return c.WriteMessage(o)
}

// RecvOrder is a convenience wrapper reading an Order frame.
func (c *Channel) RecvOrder() (Order, Error) {
	var o Order
	err := c.ReadMessage(&o)
	return o, err
}

// SendAnswer is a convenience wrapper writing an Answer frame.
func (c *Channel) SendAnswer(a Answer) Error {
	return c.WriteMessage(a)
}

// RecvAnswer is a convenience wrapper reading an Answer frame.
func (c *Channel) RecvAnswer() (Answer, Error) {
	var a Answer
	err := c.ReadMessage(&a)
	return a, err
}

// Pair returns a connected Channel pair over a Unix domain socketpair,
// used both by tests and by the master to open a fresh worker command
// channel before fork+exec hands one end to the child (the fd crosses
// exec as described in §4.6's file-descriptor migration contract).
func Pair() (a, b *Channel, err error) {
	fds, serr := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if serr != nil {
		return nil, nil, serr
	}

	fileA := os.NewFile(uintptr(fds[0]), "command-a")
	fileB := os.NewFile(uintptr(fds[1]), "command-b")
	defer fileA.Close()
	defer fileB.Close()

	connA, caerr := net.FileConn(fileA)
	if caerr != nil {
		return nil, nil, caerr
	}
	connB, cberr := net.FileConn(fileB)
	if cberr != nil {
		_ = connA.Close()
		return nil, nil, cberr
	}

	return NewChannel(connA.(*net.UnixConn)), NewChannel(connB.(*net.UnixConn)), nil
}
