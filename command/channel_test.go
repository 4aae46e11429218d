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

package command_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowgate/flowgate/command"
)

var _ = Describe("Channel", func() {
	It("round-trips an Order/Answer pair over a socketpair", func() {
		a, b, err := command.Pair()
		Expect(err).To(BeNil())
		defer a.Close()
		defer b.Close()

		order := command.Order{RequestID: "req-1", Kind: command.KindAddHTTPFront, Host: "lolcatho.st", Port: 8080, ApplicationID: "app_1"}
		Expect(a.SendOrder(order)).To(BeNil())

		got, rerr := b.RecvOrder()
		Expect(rerr).To(BeNil())
		Expect(got).To(Equal(order))

		Expect(b.SendAnswer(command.Answer{RequestID: "req-1", Status: command.StatusOk})).To(BeNil())
		ans, aerr := a.RecvAnswer()
		Expect(aerr).To(BeNil())
		Expect(ans.Status).To(Equal(command.StatusOk))
		Expect(ans.IsTerminal()).To(BeTrue())
	})

	It("returns ErrorWouldBlock in non-blocking mode with nothing buffered", func() {
		a, b, err := command.Pair()
		Expect(err).To(BeNil())
		defer a.Close()
		defer b.Close()

		b.SetMode(command.NonBlocking)
		_, rerr := b.RecvOrder()
		Expect(rerr).NotTo(BeNil())
	})

	It("delivers a stream of Processing answers before the terminal one", func() {
		a, b, err := command.Pair()
		Expect(err).To(BeNil())
		defer a.Close()
		defer b.Close()

		go func() {
			_ = b.SendAnswer(command.Answer{RequestID: "req-2", Status: command.StatusProcessing, Detail: "step 1"})
			_ = b.SendAnswer(command.Answer{RequestID: "req-2", Status: command.StatusOk})
		}()

		first, _ := a.RecvAnswer()
		Expect(first.IsTerminal()).To(BeFalse())

		second, _ := a.RecvAnswer()
		Expect(second.IsTerminal()).To(BeTrue())
	})
})
