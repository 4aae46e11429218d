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

// Package command implements the framed JSON-over-Unix-socket message
// transport that connects admin<->master and master<->worker, per §4.4.
// Framing is a JSON object followed by a single 0x00 byte; the channel
// can run in blocking mode (bootstrap, upgrade handoff) or non-blocking
// mode (steady-state polling from the event loop).
package command

// Kind identifies the order carried by an Order message. Admin-facing
// kinds are the ones named in §4.4; UpgradeWorker, DumpState and
// LoadState are also used internally between master and worker.
type Kind string

const (
	KindAddHTTPFront    Kind = "add_http_front"
	KindRemoveHTTPFront Kind = "remove_http_front"
	KindAddTLSFront     Kind = "add_tls_front"
	KindRemoveTLSFront  Kind = "remove_tls_front"
	KindAddBackend      Kind = "add_backend"
	KindRemoveBackend   Kind = "remove_backend"
	KindListState       Kind = "list_state"
	KindSoftStop        Kind = "soft_stop"
	KindHardStop        Kind = "hard_stop"
	KindUpgradeMaster   Kind = "upgrade_master"
	KindUpgradeWorker   Kind = "upgrade_worker"
	KindDumpState       Kind = "dump_state"
	KindLoadState       Kind = "load_state"
)

// Order is one admin- or master-originated command. Only the fields
// relevant to Kind are populated; the rest are zero values, mirroring the
// loosely-typed "one big struct, tagged by Kind" wire shape the teacher's
// own config order types use for heterogeneous JSON payloads.
type Order struct {
	RequestID string `json:"request_id"`
	Kind      Kind   `json:"kind"`

	Host          string `json:"host,omitempty"`
	Path          string `json:"path,omitempty"`
	Port          int    `json:"port,omitempty"`
	ApplicationID string `json:"application_id,omitempty"`
	IP            string `json:"ip,omitempty"`
	CertFile      string `json:"cert_file,omitempty"`
	KeyFile       string `json:"key_file,omitempty"`

	StickySession     bool `json:"sticky_session,omitempty"`
	SendProxyProtocol bool `json:"send_proxy_protocol,omitempty"`

	WorkerID uint32 `json:"worker_id,omitempty"`
}

// AnswerStatus is the three-way outcome every Order eventually receives,
// per §4.4's answer semantics.
type AnswerStatus string

const (
	StatusOk         AnswerStatus = "ok"
	StatusError      AnswerStatus = "error"
	StatusProcessing AnswerStatus = "processing"
)

// Answer is the reply to an Order, referencing it by RequestID. A command
// that streams progress sends zero or more StatusProcessing answers
// before a terminating StatusOk or StatusError.
type Answer struct {
	RequestID string       `json:"request_id"`
	Status    AnswerStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	Detail    string       `json:"detail,omitempty"`

	// State carries the list/dump-state payload for KindListState and
	// KindDumpState answers; nil for every other kind.
	State interface{} `json:"state,omitempty"`
}

// IsTerminal reports whether this answer ends the request's lifecycle
// (Ok or Error), as opposed to a Processing progress update.
func (a Answer) IsTerminal() bool {
	return a.Status == StatusOk || a.Status == StatusError
}
