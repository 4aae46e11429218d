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

// Package upgrade implements the master-binary hot-upgrade protocol of
// §4.6: a new master process is exec'd while every worker keeps running
// unsupervised, inherits the command channel and side channel to each
// worker over ExtraFiles, and rebuilds its in-memory state (routing
// table, worker table, worker-id sequence) from a payload the old
// master writes down a pipe fd passed the same way. Workers themselves
// are migrated independently through master.UpgradeWorker, which never
// touches this package.
package upgrade

import (
	"encoding/json"

	"github.com/flowgate/flowgate/config"
	. "github.com/flowgate/flowgate/errors"
	"github.com/flowgate/flowgate/routing"
)

// WorkerPayload describes one running worker the successor master must
// adopt: its id and pid for the worker table, plus the fd numbers (valid
// in the successor's own process, assigned by the order ExtraFiles lists
// them in) its command channel and side channel arrive on.
type WorkerPayload struct {
	ID            uint32 `json:"id"`
	Pid           int    `json:"pid"`
	ChannelFd     int    `json:"channel_fd"`
	SideChannelFd int    `json:"side_channel_fd"`
}

// MasterPayload is everything a successor master needs to resume serving
// without re-deriving it from scratch: the static config it was started
// with, a snapshot of the authoritative routing table, the worker-id
// sequence counter, and one WorkerPayload per adopted worker.
type MasterPayload struct {
	Config       config.Config     `json:"config"`
	Routing      routing.Snapshot  `json:"routing"`
	NextWorkerID uint32            `json:"next_worker_id"`
	Workers      []WorkerPayload   `json:"workers"`
}

// Encode serializes p as a single JSON document with no trailing
// terminator; the pipe it travels over is closed by the writer once
// written, so the reader's io.ReadAll-to-EOF needs no framing byte the
// way the steady-state command.Channel protocol does.
func Encode(p MasterPayload) ([]byte, Error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, ErrorPayloadEncode.Error(err)
	}
	return b, nil
}

// Decode is Encode's inverse.
func Decode(b []byte) (MasterPayload, Error) {
	var p MasterPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return MasterPayload{}, ErrorPayloadDecode.Error(err)
	}
	return p, nil
}
