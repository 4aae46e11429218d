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
	"crypto/tls"
	"net"
	"os"

	liberr "github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/certificates"
)

// AdoptListeners receives one batch of ListenerHandoff values over
// sideChannel (either the master's initial bootstrap send or an
// upgrade's MigrateListeners relay) and registers each with l, rebuilding
// a tls.Config from CertFile/KeyFile for a TLS front since tls.Config
// itself never crosses the wire.
func (l *Loop) AdoptListeners(sideChannel *net.UnixConn) liberr.Error {
	handoffs, rerr := ReceiveListeners(sideChannel)
	if rerr != nil {
		return rerr
	}

	for _, h := range handoffs {
		f := os.NewFile(uintptr(h.Fd), "listener")
		ln, lerr := net.FileListener(f)
		if lerr != nil {
			return ErrorListenerTransfer.liberr.Error(lerr)
		}
		tln, ok := ln.(*net.TCPListener)
		if !ok {
			return ErrorListenerTransfer.liberr.Error(nil)
		}

		var tlsConfig *tls.Config
		if h.Proto == ProtoTLS {
			tc := certificates.New()
			if cerr := tc.AddCertificatePairFile(h.KeyFile, h.CertFile); cerr != nil {
				return ErrorListenerTransfer.liberr.Error(cerr)
			}
			tlsConfig = tc.TlsConfig("")
		}

		if err := l.RegisterListener(tln, h.Proto, h.Port, tlsConfig, h.CertFile, h.KeyFile); err != nil {
			return err
		}
	}
	return nil
}
