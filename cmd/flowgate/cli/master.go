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
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flowgate/flowgate/command"
	"github.com/flowgate/flowgate/config"
	"github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/master"
	"github.com/flowgate/flowgate/upgrade"
)

// masterCmd runs the control-plane process: bind every configured
// listener, spawn the configured worker pool, hand each worker its
// listeners, and serve the admin command socket until signalled to stop.
//
// --upgrade-fd switches this into the successor side of a master-binary
// upgrade: rather than binding fresh listeners and spawning workers, it
// reads an upgrade.MasterPayload off the given fd (inherited via
// os/exec's ExtraFiles, see upgrade.SpawnSuccessor) and reconstructs the
// predecessor's state without disturbing any already-running worker.
func masterCmd() *cobra.Command {
	var configPath string
	var upgradeFd int

	cmd := &cobra.Command{
		Use:   "master",
		Short: "run the flowgate master (control-plane) process",
		RunE: func(cmd *cobra.Command, args []string) error {
			if upgradeFd >= 0 {
				return runMasterSuccessor(upgradeFd)
			}
			return runMasterFresh(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the master configuration file")
	cmd.Flags().IntVar(&upgradeFd, "upgrade-fd", -1, "internal: fd carrying a MasterPayload from a predecessor master (set by upgrade.SpawnSuccessor)")
	_ = cmd.Flags().MarkHidden("upgrade-fd")

	return cmd
}

func runMasterFresh(configPath string) error {
	cfg, cerr := config.Load(configPath)
	if cerr != nil {
		return cerr
	}
	log := newLogger("master", cfg.LogLevel)

	m := master.New(log)

	lns, handoffs, berr := master.BindListeners(cfg.Listeners)
	if berr != nil {
		return berr
	}
	defer closeListeners(lns)

	binaryPath, perr := os.Executable()
	if perr != nil {
		return perr
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		id := m.Workers.NextID()
		w, serr := master.SpawnWorker(id, binaryPath, nil, log)
		if serr != nil {
			return serr
		}
		m.Workers.Add(w)
		go master.PumpWorkerAnswers(m, w.Channel, id)

		if herr := master.SendListenersTo(w, handoffs); herr != nil {
			return herr
		}
	}

	return serveMaster(m, cfg, binaryPath, log)
}

func runMasterSuccessor(fd int) error {
	payload, rerr := upgrade.ReadPayload(fd)
	if rerr != nil {
		return rerr
	}
	log := newLogger("master", payload.Config.LogLevel)

	m, merr := upgrade.Restore(payload, log)
	if merr != nil {
		return merr
	}

	binaryPath, perr := os.Executable()
	if perr != nil {
		return perr
	}

	return serveMaster(m, payload.Config, binaryPath, log)
}

// serveMaster binds the admin command socket and blocks until a
// terminating signal arrives. Both the fresh-start and upgrade-successor
// paths converge here: once a *master.Master exists, serving admin
// commands looks identical regardless of how it got its workers.
func serveMaster(m *master.Master, cfg config.Config, binaryPath string, log *logrus.Entry) error {
	srv, serr := master.NewCommandServer(cfg.CommandSocket, m, log)
	if serr != nil {
		return serr
	}
	defer srv.Close()

	srv.SetUpgradeHooks(
		func() errors.Error {
			_, err := upgrade.SpawnSuccessor(m, cfg, binaryPath, nil)
			return err
		},
		func(workerID uint32) errors.Error {
			_, err := m.UpgradeWorker(workerID, binaryPath, nil, log)
			return err
		},
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sig
		log.Info("signal received, stopping every worker")
		for _, w := range m.Workers.All() {
			_ = w.Send(command.Order{RequestID: fmt.Sprintf("shutdown-%d", w.ID), Kind: command.KindSoftStop})
		}
		_ = srv.Close()
	}()

	log.WithField("socket", cfg.CommandSocket).Info("master listening for admin commands")
	srv.Serve()
	return nil
}

func closeListeners(lns []*net.TCPListener) {
	for _, ln := range lns {
		_ = ln.Close()
	}
}
