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
 */

package session_test

import (
	"bufio"
	"net"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowgate/flowgate/routing"
	"github.com/flowgate/flowgate/session"
)

// dialedPair returns two connected net.Conns standing in for a client's
// front socket and the proxy's side of it, without going through a real
// listener.
func dialedPair() (client, front net.Conn) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).To(BeNil())
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	Expect(err).To(BeNil())
	front = <-acceptCh
	return
}

var _ = Describe("Http protocol variant", func() {
	It("responds 503 when the route has no live backend", func() {
		client, front := dialedPair()
		defer client.Close()

		routes := routing.NewConfigState()
		Expect(routes.AddHTTPFront("lolcatho.st", "/", 8080, "app_1")).To(BeNil())

		s := session.New(front, 4096, session.NewHttp(), routes, routing.NewPicker(), nil)
		s.ListenerPort = 8080

		_, err := client.Write([]byte("GET / HTTP/1.1\r\nHost: lolcatho.st:8080\r\n\r\n"))
		Expect(err).To(BeNil())

		time.Sleep(20 * time.Millisecond)
		s.Protocol.OnReadable(s)

		_ = client.SetReadDeadline(time.Now().Add(time.Second))
		status, rerr := bufio.NewReader(client).ReadString('\n')
		Expect(rerr).To(BeNil())
		Expect(status).To(ContainSubstring("503"))
	})

	It("opens a back socket to the live backend for a routed request", func() {
		backendLn, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())
		defer backendLn.Close()

		go func() {
			conn, aerr := backendLn.Accept()
			if aerr != nil {
				return
			}
			defer conn.Close()
			buf := make([]byte, 4096)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
		}()

		backendHost, backendPort, _ := net.SplitHostPort(backendLn.Addr().String())

		client, front := dialedPair()
		defer client.Close()

		routes := routing.NewConfigState()
		Expect(routes.AddHTTPFront("lolcatho.st", "/", 8080, "app_1")).To(BeNil())
		port, _ := strconv.Atoi(backendPort)
		routes.AddBackend("app_1", backendHost, port)

		s := session.New(front, 4096, session.NewHttp(), routes, routing.NewPicker(), nil)
		s.ListenerPort = 8080

		_, err = client.Write([]byte("GET / HTTP/1.1\r\nHost: lolcatho.st:8080\r\n\r\n"))
		Expect(err).To(BeNil())

		time.Sleep(20 * time.Millisecond)
		_, _ = s.Protocol.OnReadable(s)
		Expect(s.Back).NotTo(BeNil())
	})
})
