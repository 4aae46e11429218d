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

package httpmsg_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowgate/flowgate/httpmsg"
)

var _ = Describe("RequestParser", func() {
	It("parses a simple GET with Host in one shot", func() {
		p := httpmsg.NewRequestParser()
		buf := []byte("GET / HTTP/1.1\r\nHost: lolcatho.st:8080\r\n\r\n")

		Expect(p.Parse(buf)).To(Equal(httpmsg.StateHeadersParsed))

		v, err := p.Validate(buf)
		Expect(err).To(BeNil())
		Expect(v.Method).To(Equal("GET"))
		Expect(v.Host).To(Equal("lolcatho.st:8080"))
		Expect(v.Framing.HasBody).To(BeFalse())
	})

	It("resumes across split reads at the same final state", func() {
		whole := []byte("GET /x HTTP/1.1\r\nHost: a\r\nX-Foo: bar\r\n\r\n")

		p1 := httpmsg.NewRequestParser()
		Expect(p1.Parse(whole)).To(Equal(httpmsg.StateHeadersParsed))

		p2 := httpmsg.NewRequestParser()
		split := len(whole) / 2
		Expect(p2.Parse(whole[:split])).To(Equal(httpmsg.StateParsingHeaders))
		Expect(p2.Parse(whole)).To(Equal(httpmsg.StateHeadersParsed))

		Expect(p2.Position()).To(Equal(p1.Position()))
	})

	It("rejects two distinct Content-Length headers", func() {
		p := httpmsg.NewRequestParser()
		buf := []byte("POST / HTTP/1.1\r\nHost: a\r\nContent-Length: 4\r\nContent-Length: 5\r\n\r\n")

		Expect(p.Parse(buf)).To(Equal(httpmsg.StateError))
	})

	It("rejects Transfer-Encoding combined with Content-Length", func() {
		p := httpmsg.NewRequestParser()
		buf := []byte("POST / HTTP/1.1\r\nHost: a\r\nContent-Length: 4\r\nTransfer-Encoding: chunked\r\n\r\n")

		Expect(p.Parse(buf)).To(Equal(httpmsg.StateError))
	})

	It("rejects two headers of the same non-special-cased name", func() {
		p := httpmsg.NewRequestParser()
		buf := []byte("GET / HTTP/1.1\r\nHost: a\r\nX-Foo: one\r\nX-Foo: two\r\n\r\n")

		Expect(p.Parse(buf)).To(Equal(httpmsg.StateError))
	})

	It("tolerates repeated Set-Cookie headers", func() {
		p := httpmsg.NewRequestParser()
		buf := []byte("GET / HTTP/1.1\r\nHost: a\r\nSet-Cookie: a=1\r\nSet-Cookie: b=2\r\n\r\n")

		Expect(p.Parse(buf)).To(Equal(httpmsg.StateHeadersParsed))
	})

	It("requires Host on HTTP/1.1 but tolerates its absence on HTTP/1.0", func() {
		p11 := httpmsg.NewRequestParser()
		buf11 := []byte("GET / HTTP/1.1\r\n\r\n")
		Expect(p11.Parse(buf11)).To(Equal(httpmsg.StateHeadersParsed))
		_, err := p11.Validate(buf11)
		Expect(err).NotTo(BeNil())

		p10 := httpmsg.NewRequestParser()
		buf10 := []byte("GET / HTTP/1.0\r\n\r\n")
		Expect(p10.Parse(buf10)).To(Equal(httpmsg.StateHeadersParsed))
		v, err := p10.Validate(buf10)
		Expect(err).To(BeNil())
		Expect(v.Host).To(Equal(""))
	})

	It("leaves an incomplete message unchanged until more bytes arrive", func() {
		p := httpmsg.NewRequestParser()
		buf := []byte("GET / HTTP/1.1\r\nHost: a\r\n")

		Expect(p.Parse(buf)).To(Equal(httpmsg.StateParsingHeaders))
		Expect(p.Position()).To(BeNumerically("<=", len(buf)))
	})
})
