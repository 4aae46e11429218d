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

package buffer_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowgate/flowgate/buffer"
)

var _ = Describe("Queue", func() {
	It("keeps parsed <= output <= len", func() {
		q := buffer.NewQueue(32)
		_, _ = q.Write([]byte("GET / HTTP/1.1\r\n\r\n"))

		Expect(q.AdvanceOutput(10)).To(BeNil())
		Expect(q.AdvanceParsed(5)).To(BeNil())
		Expect(q.AdvanceParsed(20)).ToNot(BeNil())
		Expect(q.AdvanceOutput(-1)).ToNot(BeNil())
	})

	It("re-bases parsed and output positions on compact", func() {
		q := buffer.NewQueue(16)
		_, _ = q.Write([]byte("0123456789012345"[:16]))
		_ = q.AdvanceOutput(8)
		_ = q.AdvanceParsed(4)
		_ = q.Consume(4)

		shifted := q.Compact()
		Expect(shifted).To(Equal(4))
		Expect(q.ParsedPosition()).To(Equal(0))
		Expect(q.OutputPosition()).To(Equal(4))
	})

	It("flushes pending edits in order", func() {
		q := buffer.NewQueue(64)
		_, _ = q.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))

		q.QueueEdit(len("GET / HTTP/1.1\r\n"), 0, []byte("X-Forwarded-For: 1.2.3.4\r\n"))
		out := q.Flush()

		Expect(string(out)).To(ContainSubstring("X-Forwarded-For: 1.2.3.4"))
		Expect(string(out)).To(ContainSubstring("Host: x"))
	})

	It("flush with no edits returns a plain copy", func() {
		q := buffer.NewQueue(16)
		_, _ = q.Write([]byte("abcd"))
		Expect(q.Flush()).To(Equal([]byte("abcd")))
	})
})
