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

// Package cli wires the flowgate binary's three process roles (master,
// worker, and the ctl admin client) onto a single cobra command tree, per
// §6. Re-exec during a hot upgrade depends on the exact subcommand and
// flag names here: master.SpawnWorker and upgrade.SpawnSuccessor both
// build argv strings against "worker"/"master --upgrade-fd", so renaming
// a command or flag here must stay in lockstep with those two call sites.
package cli

import (
	"github.com/spf13/cobra"
)

// Root returns the flowgate command tree. Each subcommand owns its own
// flag set; nothing is shared at this level beyond the binary name and
// short usage text cobra prints for `flowgate --help`.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowgate",
		Short: "programmable HTTP/TLS reverse proxy",
		Long:  "flowgate is a programmable multi-process reverse proxy: one master process holds the routing table and a pool of worker processes drive the event loop that actually terminates connections.",
	}

	root.AddCommand(masterCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(ctlCmd())

	return root
}
