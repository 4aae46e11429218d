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

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/flowgate/flowgate/command"
)

// ctlCmd is the admin client: every subcommand dials --socket, sends one
// Order, and prints whatever Answer stream comes back. It is deliberately
// a thin wrapper around command.Channel rather than its own protocol,
// since admin and master speak the exact same framing worker and master
// do.
func ctlCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "send an admin command to a running flowgate master",
	}
	cmd.PersistentFlags().StringVar(&socketPath, "socket", "/var/run/flowgate/command.sock", "master admin command socket")

	cmd.AddCommand(
		ctlAddHTTPFront(&socketPath),
		ctlRemoveHTTPFront(&socketPath),
		ctlAddTLSFront(&socketPath),
		ctlRemoveTLSFront(&socketPath),
		ctlAddBackend(&socketPath),
		ctlRemoveBackend(&socketPath),
		ctlListState(&socketPath),
		ctlDumpState(&socketPath),
		ctlSoftStop(&socketPath),
		ctlHardStop(&socketPath),
		ctlUpgradeMaster(&socketPath),
		ctlUpgradeWorker(&socketPath),
	)
	return cmd
}

func ctlAddHTTPFront(socket *string) *cobra.Command {
	var host, path string
	var port int
	var appID string
	cmd := &cobra.Command{
		Use:   "add-http-front",
		Short: "register an HTTP front (hostname, path prefix, port) for an application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindAddHTTPFront, Host: host, Path: path, Port: port, ApplicationID: appID})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "front hostname")
	cmd.Flags().StringVar(&path, "path", "/", "path prefix")
	cmd.Flags().IntVar(&port, "port", 80, "listener port")
	cmd.Flags().StringVar(&appID, "app", "", "application id the front routes to")
	return cmd
}

func ctlRemoveHTTPFront(socket *string) *cobra.Command {
	var host, path string
	var port int
	cmd := &cobra.Command{
		Use:   "remove-http-front",
		Short: "remove an HTTP front",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindRemoveHTTPFront, Host: host, Path: path, Port: port})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "front hostname")
	cmd.Flags().StringVar(&path, "path", "/", "path prefix")
	cmd.Flags().IntVar(&port, "port", 80, "listener port")
	return cmd
}

func ctlAddTLSFront(socket *string) *cobra.Command {
	var host, path, certFile, keyFile string
	var port int
	var appID string
	cmd := &cobra.Command{
		Use:   "add-tls-front",
		Short: "register a TLS front for an application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindAddTLSFront, Host: host, Path: path, Port: port, ApplicationID: appID, CertFile: certFile, KeyFile: keyFile})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "front hostname")
	cmd.Flags().StringVar(&path, "path", "/", "path prefix")
	cmd.Flags().IntVar(&port, "port", 443, "listener port")
	cmd.Flags().StringVar(&appID, "app", "", "application id the front routes to")
	cmd.Flags().StringVar(&certFile, "cert-file", "", "certificate file path")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "private key file path")
	return cmd
}

func ctlRemoveTLSFront(socket *string) *cobra.Command {
	var host, path string
	var port int
	cmd := &cobra.Command{
		Use:   "remove-tls-front",
		Short: "remove a TLS front",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindRemoveTLSFront, Host: host, Path: path, Port: port})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "front hostname")
	cmd.Flags().StringVar(&path, "path", "/", "path prefix")
	cmd.Flags().IntVar(&port, "port", 443, "listener port")
	return cmd
}

func ctlAddBackend(socket *string) *cobra.Command {
	var appID, ip string
	var port int
	var sticky, proxyProtocol bool
	cmd := &cobra.Command{
		Use:   "add-backend",
		Short: "add a backend instance to an application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindAddBackend, ApplicationID: appID, IP: ip, Port: port, StickySession: sticky, SendProxyProtocol: proxyProtocol})
		},
	}
	cmd.Flags().StringVar(&appID, "app", "", "application id")
	cmd.Flags().StringVar(&ip, "ip", "", "backend ip")
	cmd.Flags().IntVar(&port, "port", 0, "backend port")
	cmd.Flags().BoolVar(&sticky, "sticky-session", false, "enable sticky sessions for this application")
	cmd.Flags().BoolVar(&proxyProtocol, "send-proxy-protocol", false, "send the PROXY protocol header to this application's backends")
	return cmd
}

func ctlRemoveBackend(socket *string) *cobra.Command {
	var appID, ip string
	var port int
	cmd := &cobra.Command{
		Use:   "remove-backend",
		Short: "remove a backend instance from an application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindRemoveBackend, ApplicationID: appID, IP: ip, Port: port})
		},
	}
	cmd.Flags().StringVar(&appID, "app", "", "application id")
	cmd.Flags().StringVar(&ip, "ip", "", "backend ip")
	cmd.Flags().IntVar(&port, "port", 0, "backend port")
	return cmd
}

func ctlListState(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-state",
		Short: "print a summary of the routing table held by the master",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindListState})
		},
	}
}

func ctlDumpState(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dump-state",
		Short: "dump the full routing table as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindDumpState})
		},
	}
}

func ctlSoftStop(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "soft-stop",
		Short: "ask the master and every worker to drain and stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindSoftStop})
		},
	}
}

func ctlHardStop(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "hard-stop",
		Short: "ask the master and every worker to stop immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindHardStop})
		},
	}
}

func ctlUpgradeMaster(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade-master",
		Short: "hot-upgrade the master binary without dropping any worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindUpgradeMaster})
		},
	}
}

func ctlUpgradeWorker(socket *string) *cobra.Command {
	var workerID uint32
	cmd := &cobra.Command{
		Use:   "upgrade-worker",
		Short: "hot-upgrade one worker process without dropping a listening socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(*socket, command.Order{Kind: command.KindUpgradeWorker, WorkerID: workerID})
		},
	}
	cmd.Flags().Uint32Var(&workerID, "worker-id", 0, "id of the worker to replace")
	return cmd
}

// sendAndPrint dials socketPath, sends o, and renders every Answer it
// receives until a terminal one arrives. A Processing answer drives an
// mpb spinner rather than a percentage bar, since commands that stream
// progress (dump-state on a large cluster) have no known total step
// count to render against.
func sendAndPrint(socketPath string, o command.Order) error {
	if o.RequestID == "" {
		o.RequestID = uuid.NewString()
	}

	addr, rerr := net.ResolveUnixAddr("unix", socketPath)
	if rerr != nil {
		return rerr
	}
	conn, derr := net.DialUnix("unix", nil, addr)
	if derr != nil {
		return derr
	}
	defer conn.Close()

	ch := command.NewChannel(conn)
	if serr := ch.SendOrder(o); serr != nil {
		return serr
	}

	out := colorable.NewColorableStdout()
	var bar *mpb.Progress
	var spinner *mpb.Bar

	for {
		ans, aerr := ch.RecvAnswer()
		if aerr != nil {
			return aerr
		}

		if !ans.IsTerminal() {
			if bar == nil {
				bar = mpb.New(mpb.WithOutput(out))
				spinner = bar.New(0, mpb.SpinnerStyle(), mpb.PrependDecorators(decor.Name(string(o.Kind))))
			}
			spinner.SetCurrent(spinner.Current() + 1)
			if ans.Detail != "" {
				fmt.Fprintln(out, color.New(color.FgYellow).Sprintf("processing: %s", ans.Detail))
			}
			continue
		}

		if bar != nil {
			spinner.SetCurrent(spinner.Current())
			bar.Wait()
		}

		printAnswer(out, ans)
		if ans.Status == command.StatusError {
			return fmt.Errorf("%s", ans.Reason)
		}
		return nil
	}
}

func printAnswer(out io.Writer, ans command.Answer) {
	switch ans.Status {
	case command.StatusOk:
		fmt.Fprintln(out, color.New(color.FgGreen, color.Bold).Sprint("ok"))
	case command.StatusError:
		fmt.Fprintln(out, color.New(color.FgRed, color.Bold).Sprintf("error: %s", ans.Reason))
	}
	if ans.State == nil {
		return
	}
	body, merr := json.MarshalIndent(ans.State, "", "  ")
	if merr != nil {
		fmt.Fprintln(out, ans.State)
		return
	}
	fmt.Fprintln(out, string(body))
}
