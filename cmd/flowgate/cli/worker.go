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

package cli

import (
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowgate/flowgate/command"
	"github.com/flowgate/flowgate/metrics"
	"github.com/flowgate/flowgate/routing"
	"github.com/flowgate/flowgate/worker"
)

// workerCmd runs one engine process: it never reads a config file of its
// own, since the master hands it everything it needs over two inherited
// fds (--channel-fd for orders, --side-channel-fd for listener handoff)
// set up by master.SpawnWorker.
func workerCmd() *cobra.Command {
	var id uint32
	var channelFd, sideChannelFd int
	var statsdAddr, statsdPrefix string
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "run one flowgate engine process (spawned by the master, not meant for direct use)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(id, channelFd, sideChannelFd, statsdAddr, statsdPrefix, pollInterval)
		},
	}

	cmd.Flags().Uint32Var(&id, "id", 0, "worker id assigned by the master")
	cmd.Flags().IntVar(&channelFd, "channel-fd", 3, "inherited fd for the master command channel")
	cmd.Flags().IntVar(&sideChannelFd, "side-channel-fd", 4, "inherited fd for listener handoff")
	cmd.Flags().StringVar(&statsdAddr, "statsd-addr", "", "StatsD endpoint for metrics export")
	cmd.Flags().StringVar(&statsdPrefix, "statsd-prefix", "flowgate", "StatsD metric name prefix")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 200*time.Millisecond, "epoll wait bound, also the upper bound on timer lateness")

	return cmd
}

func runWorker(id uint32, channelFd, sideChannelFd int, statsdAddr, statsdPrefix string, pollInterval time.Duration) error {
	log := newLogger("worker", "info").WithField("worker_id", id)

	ch, cerr := fdToChannel(channelFd)
	if cerr != nil {
		return cerr
	}
	sideConn, serr := fdToUnixConn(sideChannelFd)
	if serr != nil {
		return serr
	}

	routes := routing.NewConfigState()
	picker := routing.NewPicker()
	reg, merr := metrics.New(statsdPrefix, statsdAddr)
	if merr != nil {
		return merr
	}

	loop, lerr := worker.NewLoop(routes, picker, reg, log)
	if lerr != nil {
		return lerr
	}

	if aerr := loop.AdoptListeners(sideConn); aerr != nil {
		return aerr
	}

	rt := &worker.Runtime{Loop: loop, SideChannel: sideConn, Log: log}
	go rt.Serve(ch)

	log.Info("worker ready")
	return loop.Run(pollInterval)
}

func fdToChannel(fd int) (*command.Channel, error) {
	conn, err := fdToUnixConn(fd)
	if err != nil {
		return nil, err
	}
	return command.NewChannel(conn), nil
}

func fdToUnixConn(fd int) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), "inherited-fd")
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UnixConn), nil
}
