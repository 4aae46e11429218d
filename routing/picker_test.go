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

package routing_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowgate/flowgate/routing"
)

var _ = Describe("Picker", func() {
	It("distributes requests fairly across live backends", func() {
		c := routing.NewConfigState()
		c.AddBackend("A", "10.0.0.1", 80)
		c.AddBackend("A", "10.0.0.2", 80)
		c.AddBackend("A", "10.0.0.3", 80)

		p := routing.NewPicker()
		counts := map[string]int{}
		const n = 99
		for i := 0; i < n; i++ {
			b, err := p.Next(c, "A")
			Expect(err).To(BeNil())
			counts[b.IP]++
		}

		for _, got := range counts {
			Expect(got).To(Equal(n / 3))
		}
	})

	It("returns an error when there is no live backend", func() {
		c := routing.NewConfigState()
		p := routing.NewPicker()

		_, err := p.Next(c, "A")
		Expect(err).ToNot(BeNil())
	})

	It("skips a backend marked dead until its cool-off elapses", func() {
		c := routing.NewConfigState()
		c.AddBackend("A", "10.0.0.1", 80)
		c.AddBackend("A", "10.0.0.2", 80)

		p := routing.NewPicker()
		dead := c.Backends("A")[0]
		p.MarkDead(dead)

		for i := 0; i < 4; i++ {
			b, err := p.Next(c, "A")
			Expect(err).To(BeNil())
			Expect(b.IP).To(Equal("10.0.0.2"))
		}
	})
})
