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

package session

import "time"

// Metrics accumulates the per-session counters the data model requires:
// byte counters and timestamps. Pipe updates the byte counters as it
// shuttles data and Duration feeds the metrics Registry's response time;
// nothing reads the byte counters when the session closes.
type Metrics struct {
	StartedAt     time.Time
	LastActivity  time.Time
	BytesFromFront uint64
	BytesToFront   uint64
	BytesFromBack  uint64
	BytesToBack    uint64
}

// Duration reports how long the session has been alive.
func (m *Metrics) Duration() time.Duration {
	return time.Since(m.StartedAt)
}

func (m *Metrics) touch() {
	m.LastActivity = time.Now()
}
