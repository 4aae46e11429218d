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

package worker_test

import (
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowgate/flowgate/command"
	"github.com/flowgate/flowgate/worker"
)

var _ = Describe("listener handoff over a side channel", func() {
	It("round-trips a single listener's fd and metadata", func() {
		ln, lerr := net.Listen("tcp", "127.0.0.1:0")
		Expect(lerr).To(BeNil())
		defer ln.Close()
		tln := ln.(*net.TCPListener)

		fd, ferr := worker.ListenerFd(tln)
		Expect(ferr).To(BeNil())
		Expect(fd).To(BeNumerically(">=", 0))

		a, b, perr := command.Pair()
		Expect(perr).To(BeNil())
		defer a.Close()
		defer b.Close()

		sent := []worker.ListenerHandoff{{
			Fd:       fd,
			Proto:    worker.ProtoHTTP,
			Addr:     tln.Addr().String(),
			Port:     8080,
			CertFile: "",
			KeyFile:  "",
		}}

		go func() {
			Expect(worker.SendListenerSet(a.UnixConn(), sent)).To(BeNil())
		}()

		received, rerr := worker.ReceiveListeners(b.UnixConn())
		Expect(rerr).To(BeNil())
		Expect(received).To(HaveLen(1))
		Expect(received[0].Proto).To(Equal(worker.ProtoHTTP))
		Expect(received[0].Port).To(Equal(8080))
		Expect(received[0].Fd).NotTo(Equal(-1))
	})

	It("round-trips an empty set as a zero count with no fds", func() {
		a, b, perr := command.Pair()
		Expect(perr).To(BeNil())
		defer a.Close()
		defer b.Close()

		go func() {
			Expect(worker.SendListenerSet(a.UnixConn(), nil)).To(BeNil())
		}()

		received, rerr := worker.ReceiveListeners(b.UnixConn())
		Expect(rerr).To(BeNil())
		Expect(received).To(BeEmpty())
	})
})
