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

package config_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowgate/flowgate/config"
)

var _ = Describe("Load", func() {
	It("rejects a config with no listeners", func() {
		f, err := os.CreateTemp("", "flowgate-*.yaml")
		Expect(err).To(BeNil())
		defer os.Remove(f.Name())
		_, werr := f.WriteString("worker_count: 2\ncommand_socket: /tmp/flowgate.sock\nworker_binary: /usr/bin/flowgate\n")
		Expect(werr).To(BeNil())
		Expect(f.Close()).To(BeNil())

		_, cerr := config.Load(f.Name())
		Expect(cerr).NotTo(BeNil())
	})

	It("loads a minimal valid config", func() {
		f, err := os.CreateTemp("", "flowgate-*.yaml")
		Expect(err).To(BeNil())
		defer os.Remove(f.Name())
		body := "worker_count: 2\ncommand_socket: /tmp/flowgate.sock\nworker_binary: /usr/bin/flowgate\nlisteners:\n  - address: 0.0.0.0\n    port: 8080\n"
		_, werr := f.WriteString(body)
		Expect(werr).To(BeNil())
		Expect(f.Close()).To(BeNil())

		cfg, cerr := config.Load(f.Name())
		Expect(cerr).To(BeNil())
		Expect(cfg.WorkerCount).To(Equal(2))
		Expect(cfg.Listeners).To(HaveLen(1))
		Expect(cfg.Buffers.SessionBufferSize).To(Equal(16 * 1024))
	})
})
