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

//go:build !linux

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// masterCmd and workerCmd are unsupported outside linux: both roles
// depend on epoll (worker.Loop) and SCM_RIGHTS fd-passing (the upgrade
// protocol), neither of which this package implements for other
// platforms. ctl has no such dependency and keeps working everywhere,
// matching the same linux-only split the worker/master/upgrade packages
// draw around their own event-loop and fd-passing code.
func masterCmd() *cobra.Command {
	return unsupportedCmd("master")
}

func workerCmd() *cobra.Command {
	return unsupportedCmd("worker")
}

func unsupportedCmd(use string) *cobra.Command {
	return &cobra.Command{
		Use:    use,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("flowgate %s is unsupported on this platform: the event loop and upgrade protocol are linux-only", use)
		},
	}
}
