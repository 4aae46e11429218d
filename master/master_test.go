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

package master_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowgate/flowgate/command"
	"github.com/flowgate/flowgate/master"
	"github.com/flowgate/flowgate/worker"
)

var _ = Describe("ValidateOrder", func() {
	It("rejects an AddHTTPFront missing required fields", func() {
		err := master.ValidateOrder(command.Order{Kind: command.KindAddHTTPFront})
		Expect(err).NotTo(BeNil())
	})

	It("rejects an unknown kind", func() {
		err := master.ValidateOrder(command.Order{Kind: "bogus"})
		Expect(err).NotTo(BeNil())
	})

	It("accepts a well-formed AddBackend", func() {
		err := master.ValidateOrder(command.Order{Kind: command.KindAddBackend, ApplicationID: "app_1", IP: "10.0.0.1", Port: 80})
		Expect(err).To(BeNil())
	})
})

var _ = Describe("Master.Apply", func() {
	It("rejects a front that conflicts with an existing one", func() {
		m := master.New(nil)
		Expect(m.Apply(command.Order{RequestID: "a", Kind: command.KindAddHTTPFront, Host: "example.com", Port: 80, ApplicationID: "app_1"}, nil)).To(BeNil())
		err := m.Apply(command.Order{RequestID: "b", Kind: command.KindAddHTTPFront, Host: "example.com", Port: 80, ApplicationID: "app_2"}, nil)
		Expect(err).NotTo(BeNil())
	})

	It("rejects a duplicate request id while the first is still pending", func() {
		m := master.New(nil)

		masterEnd, workerEnd, perr := command.Pair()
		Expect(perr).To(BeNil())
		defer masterEnd.Close()
		defer workerEnd.Close()

		w := worker.New(m.Workers.NextID(), 1, masterEnd, nil, nil)
		m.Workers.Add(w)

		order := command.Order{RequestID: "dup", Kind: command.KindAddBackend, ApplicationID: "app_1", IP: "10.0.0.1", Port: 80}
		Expect(m.Apply(order, nil)).To(BeNil())
		_, _ = workerEnd.RecvOrder()

		err := m.Apply(order, nil)
		Expect(err).NotTo(BeNil())
	})

	It("answers immediately when no worker is running", func() {
		m := master.New(nil)
		a, admin, perr := command.Pair()
		Expect(perr).To(BeNil())
		defer a.Close()
		defer admin.Close()

		Expect(m.Apply(command.Order{RequestID: "r1", Kind: command.KindAddBackend, ApplicationID: "app_1", IP: "10.0.0.1", Port: 80}, a)).To(BeNil())

		ans, rerr := admin.RecvAnswer()
		Expect(rerr).To(BeNil())
		Expect(ans.Status).To(Equal(command.StatusOk))
	})
})
