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

package routing

import (
	"sync"
	"time"

	. "github.com/flowgate/flowgate/errors"
)

// DefaultDeadCoolOff is the default duration a backend is skipped after a
// failed connect, per the Open Question resolution in SPEC_FULL.md §9.
const DefaultDeadCoolOff = 10 * time.Second

// Picker selects a backend for an application by round-robin, skipping
// instances marked dead, and re-admits a dead instance once its cool-off
// elapses. One Picker serves every application, keeping a round-robin
// cursor per application id so cursor state survives across requests.
type Picker struct {
	mu      sync.Mutex
	cooloff time.Duration
	cursor  map[string]int
	dead    map[*BackendInstance]time.Time
	now     func() time.Time
}

// NewPicker returns a picker using DefaultDeadCoolOff.
func NewPicker() *Picker {
	return &Picker{
		cooloff: DefaultDeadCoolOff,
		cursor:  make(map[string]int),
		dead:    make(map[*BackendInstance]time.Time),
		now:     time.Now,
	}
}

// SetCoolOff overrides the dead-backend cool-off duration.
func (p *Picker) SetCoolOff(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cooloff = d
}

// Next returns the next live backend for applicationID by round-robin. A
// backend marked dead is skipped until its cool-off has elapsed, at which
// point it is retried (and marked alive again only once a subsequent
// connect succeeds; Next itself does not clear Alive).
func (p *Picker) Next(c *ConfigState, applicationID string) (*BackendInstance, Error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := c.Backends(applicationID)
	if len(list) == 0 {
		return nil, ErrorNoLiveBackend.Error(nil)
	}

	start := p.cursor[applicationID]
	now := p.now()

	for i := 0; i < len(list); i++ {
		idx := (start + i) % len(list)
		b := list[idx]
		if !p.isLive(b, now) {
			continue
		}
		p.cursor[applicationID] = idx + 1
		return b, nil
	}

	return nil, ErrorNoLiveBackend.Error(nil)
}

// isLive reports whether b is usable: either never marked dead, or its
// cool-off has elapsed.
func (p *Picker) isLive(b *BackendInstance, now time.Time) bool {
	if !b.Alive {
		return false
	}
	deadline, marked := p.dead[b]
	if !marked {
		return true
	}
	if now.After(deadline) {
		delete(p.dead, b)
		return true
	}
	return false
}

// MarkDead records a failed connect against b, making it ineligible until
// the cool-off elapses.
func (p *Picker) MarkDead(b *BackendInstance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dead[b] = p.now().Add(p.cooloff)
}

// MarkAlive clears any cool-off recorded against b, used after a
// subsequent successful connect.
func (p *Picker) MarkAlive(b *BackendInstance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.dead, b)
}
