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
	"fmt"
	"net"

	"github.com/flowgate/flowgate/config"
	. "github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/worker"
)

// BindListeners opens one TCP listener per entry in listeners, in the
// master process, so every worker it later spawns accepts off the same
// bound sockets rather than each racing to bind its own. The returned
// listeners must be kept open for the process lifetime; closing one
// before every worker has received its fd would drop the port.
func BindListeners(listeners []config.Listener) ([]*net.TCPListener, []worker.ListenerHandoff, Error) {
	lns := make([]*net.TCPListener, 0, len(listeners))
	handoffs := make([]worker.ListenerHandoff, 0, len(listeners))

	for _, lc := range listeners {
		addr := fmt.Sprintf("%s:%d", lc.Address, lc.Port)
		ln, lerr := net.Listen("tcp", addr)
		if lerr != nil {
			return nil, nil, ErrorSpawnFailed.Error(lerr)
		}
		tln := ln.(*net.TCPListener)
		fd, ferr := worker.ListenerFd(tln)
		if ferr != nil {
			return nil, nil, ErrorSpawnFailed.Error(ferr)
		}

		proto := worker.ProtoHTTP
		if lc.TLS {
			proto = worker.ProtoTLS
		}
		lns = append(lns, tln)
		handoffs = append(handoffs, worker.ListenerHandoff{
			Fd: fd, Proto: proto, Addr: lc.Address, Port: lc.Port,
			CertFile: lc.TLSCertFile, KeyFile: lc.TLSKeyFile,
		})
	}
	return lns, handoffs, nil
}

// SendListenersTo hands every bound listener's fd to w over its side
// channel, the bootstrap counterpart of a worker-binary upgrade's
// MigrateListeners: same wire format (worker.SendListenerSet), different
// source (freshly bound sockets rather than a retiring worker's Loop).
func SendListenersTo(w *worker.Worker, handoffs []worker.ListenerHandoff) Error {
	if w.SideChannel == nil {
		return ErrorSpawnFailed.Error(nil)
	}
	return worker.SendListenerSet(w.SideChannel, handoffs)
}
