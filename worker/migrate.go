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
	"encoding/binary"
	"encoding/json"
	"io"
	"net"

	liberr "github.com/flowgate/flowgate/errors"
)

// SendListenerSet writes handoffs across sideChannel via SCM_RIGHTS,
// preceded by a 4-byte count so the receiver knows when to stop reading.
// It is the wire format shared by a freshly spawned worker's initial
// listener bootstrap (the master sends the set it just bound) and a
// worker-binary upgrade's old-to-new handoff (Loop.SendListeners sends
// the set it currently holds).
func SendListenerSet(sideChannel *net.UnixConn, handoffs []ListenerHandoff) liberr.Error {
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(handoffs)))
	if _, err := sideChannel.Write(count[:]); err != nil {
		return ErrorListenerTransfer.liberr.Error(err)
	}

	for _, h := range handoffs {
		meta, merr := json.Marshal(h)
		if merr != nil {
			return ErrorListenerTransfer.liberr.Error(merr)
		}
		if serr := SendListenerFd(sideChannel, h.Fd, meta); serr != nil {
			return serr
		}
	}
	return nil
}

// SendListeners transfers every listener the loop currently holds across
// sideChannel, the old-worker side of a worker-binary upgrade (§4.6): the
// new worker process never connects to the old one directly, so the
// master brokers the handoff by reading here and replaying onto the new
// worker's own side channel.
func (l *Loop) SendListeners(sideChannel *net.UnixConn) liberr.Error {
	return SendListenerSet(sideChannel, l.Listeners())
}

// ReceiveListeners is SendListeners' counterpart, used both by a new
// worker process collecting its inherited fronts and by the master
// brokering a worker-to-worker handoff. The returned Fd is the descriptor
// number valid in the calling process, not the sender's.
func ReceiveListeners(sideChannel *net.UnixConn) ([]ListenerHandoff, liberr.Error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(sideChannel, countBuf[:]); err != nil {
		return nil, ErrorListenerTransfer.liberr.Error(err)
	}
	count := binary.BigEndian.Uint32(countBuf[:])

	out := make([]ListenerHandoff, 0, count)
	for i := uint32(0); i < count; i++ {
		fd, meta, rerr := RecvListenerFd(sideChannel)
		if rerr != nil {
			return out, rerr
		}
		var h ListenerHandoff
		if uerr := json.Unmarshal(meta, &h); uerr != nil {
			return out, ErrorListenerTransfer.liberr.Error(uerr)
		}
		h.Fd = fd
		out = append(out, h)
	}
	return out, nil
}
