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

	"golang.org/x/sys/unix"

	liberr "github.com/flowgate/flowgate/errors"
)

// ListenerFd extracts the kernel descriptor backing ln, for code outside
// this package (the master's bootstrap listener binding) that needs to
// hand a *net.TCPListener's fd across SendListenerFd without reaching
// into Loop's private token table.
func ListenerFd(ln *net.TCPListener) (int, error) {
	raw, err := ln.SyscallConn()
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

// ListenerProto identifies what a ListenerHandoff's socket speaks, per
// §3.1's listener inventory: the same TCP socket serves either plain HTTP
// or a TLS front depending on which listeners the config binds it under.
type ListenerProto int

const (
	ProtoHTTP ListenerProto = iota
	ProtoTLS
)

// ListenerHandoff describes one listening socket as it crosses either the
// master->worker spawn boundary or the old-worker->new-worker upgrade
// boundary: the fd itself travels out of band (exec inheritance or
// SCM_RIGHTS), this struct carries the metadata needed to re-register it.
type ListenerHandoff struct {
	Fd       int           `json:"fd"`
	Proto    ListenerProto `json:"proto"`
	Addr     string        `json:"addr"`
	Port     int           `json:"port"`
	CertFile string        `json:"cert_file,omitempty"`
	KeyFile  string        `json:"key_file,omitempty"`
}

// SendListenerFd passes fd to the process on the other end of conn using
// SCM_RIGHTS, with meta serialized as the accompanying regular message.
// This is the mechanism §4.6 uses to move a bound-but-not-closed listening
// socket into a freshly spawned worker without ever unbinding the port.
func SendListenerFd(conn *net.UnixConn, fd int, meta []byte) liberr.Error {
	rights := unix.UnixRights(fd)
	if _, _, err := conn.WriteMsgUnix(meta, rights, nil); err != nil {
		return ErrorListenerTransfer.liberr.Error(err)
	}
	return nil
}

// RecvListenerFd reads one SCM_RIGHTS-carried fd and its accompanying
// metadata from conn, the worker side of SendListenerFd.
func RecvListenerFd(conn *net.UnixConn) (fd int, meta []byte, cerr liberr.Error) {
	buf := make([]byte, 4096)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return -1, nil, ErrorListenerTransfer.liberr.Error(err)
	}

	scms, perr := unix.ParseSocketControlMessage(oob[:oobn])
	if perr != nil || len(scms) == 0 {
		return -1, nil, ErrorListenerTransfer.liberr.Error(perr)
	}

	fds, gerr := unix.ParseUnixRights(&scms[0])
	if gerr != nil || len(fds) == 0 {
		return -1, nil, ErrorListenerTransfer.liberr.Error(gerr)
	}

	return fds[0], buf[:n], nil
}
