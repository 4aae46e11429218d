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

// Snapshot is ConfigState's JSON-serializable form, used both by
// KindDumpState/KindListState answers and by the upgrade payload that
// carries routing state from an old master/worker to its successor. The
// live ConfigState keeps its maps private so every mutation goes through
// the Add/Remove methods that enforce the conflicting-front invariant;
// Snapshot exists purely for the round trip across a wire boundary.
type Snapshot struct {
	HTTPFronts []HTTPFrontEntry        `json:"http_fronts"`
	TLSFronts  []TLSFrontEntry         `json:"tls_fronts"`
	Backends   map[string][]BackendInstance `json:"backends"`
	Apps       map[string]Policy       `json:"apps"`
}

type HTTPFrontEntry struct {
	FrontKey
	ApplicationID string `json:"application_id"`
}

type TLSFrontEntry struct {
	FrontKey
	TLSFront
}

// Snapshot returns c's JSON-serializable form.
func (c *ConfigState) Snapshot() Snapshot {
	s := Snapshot{
		Backends: make(map[string][]BackendInstance, len(c.backends)),
		Apps:     make(map[string]Policy, len(c.apps)),
	}
	for k, v := range c.httpFronts {
		s.HTTPFronts = append(s.HTTPFronts, HTTPFrontEntry{FrontKey: k, ApplicationID: v})
	}
	for k, v := range c.tlsFronts {
		s.TLSFronts = append(s.TLSFronts, TLSFrontEntry{FrontKey: k, TLSFront: v})
	}
	for appID, list := range c.backends {
		cp := make([]BackendInstance, len(list))
		for i, b := range list {
			cp[i] = *b
		}
		s.Backends[appID] = cp
	}
	for k, v := range c.apps {
		s.Apps[k] = v
	}
	return s
}

// LoadSnapshot rebuilds a ConfigState from a Snapshot, the inverse of
// Snapshot. It bypasses the conflicting-front checks AddHTTPFront/
// AddTLSFront perform since a snapshot taken from a valid ConfigState can
// never itself contain a conflict.
func LoadSnapshot(s Snapshot) *ConfigState {
	c := NewConfigState()
	for _, e := range s.HTTPFronts {
		c.httpFronts[e.FrontKey] = e.ApplicationID
	}
	for _, e := range s.TLSFronts {
		c.tlsFronts[e.FrontKey] = e.TLSFront
	}
	for appID, list := range s.Backends {
		cp := make([]*BackendInstance, len(list))
		for i := range list {
			b := list[i]
			cp[i] = &b
		}
		c.backends[appID] = cp
	}
	for k, v := range s.Apps {
		c.apps[k] = v
	}
	return c
}
