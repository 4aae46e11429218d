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

import (
	"github.com/flowgate/flowgate/httpmsg"
)

// Pipe shuttles bytes between front and back until either side closes,
// tracking the backend response's framing so it knows when one
// request/response pair has completed. A keep-alive pair on both sides
// returns the session to Http for the next request rather than closing.
//
// Ordering within one loop iteration follows §4.3's fixed order
// (front-read, back-write, back-read, front-write); the event loop drives
// that ordering by calling OnReadable/OnWritable per-direction, Pipe
// itself only tracks response completion and keep-alive eligibility.
type Pipe struct {
	reqFraming httpmsg.Framing

	respParser *httpmsg.ResponseParser
	framer     *httpmsg.BodyFramer
	respDone   bool

	next Protocol
}

// NewPipe returns a Pipe that will shuttle the response to the request
// whose framing (chunked vs content-length vs no-body) was just
// determined by the Http variant.
func NewPipe(reqFraming httpmsg.Framing) *Pipe {
	return &Pipe{reqFraming: reqFraming, respParser: httpmsg.NewResponseParser()}
}

func (p *Pipe) Name() string { return "Pipe" }

func (p *Pipe) Next() Protocol { return p.next }

// OnReadable is called once per loop iteration for each direction that is
// readable; the event loop distinguishes front-readable from
// back-readable by which socket raised the event, both routed here since
// the byte-shuttling logic is symmetric except for response tracking.
func (p *Pipe) OnReadable(s *Session) (ProtocolResult, SessionResult) {
	if s.FrontReadiness.Want(Readable) {
		if res := p.shuttle(s, s.Front, s.BackOutQueue()); res != SessionContinue {
			return Continue, res
		}
	}
	if s.Back != nil && s.BackReadiness.Want(Readable) {
		return p.shuttleFromBack(s)
	}
	return Continue, SessionContinue
}

func (p *Pipe) shuttle(s *Session, from interface{ Read([]byte) (int, error) }, into writer) SessionResult {
	buf := make([]byte, 16*1024)
	n, err := from.Read(buf)
	if err != nil || n == 0 {
		return SessionClose
	}
	s.Touch()
	if into == nil {
		return SessionContinue
	}
	if _, werr := into.Write(buf[:n]); werr != nil {
		return SessionClose
	}
	return SessionContinue
}

type writer interface {
	Write([]byte) (int, error)
}

// BackOutQueue exposes the back socket as a writer for the front->back
// leg; Pipe writes straight through rather than buffering through
// s.BackOut, since no header rewriting is needed once past Http.
func (s *Session) BackOutQueue() writer {
	if s.Back == nil {
		return nil
	}
	return s.Back
}

func (p *Pipe) shuttleFromBack(s *Session) (ProtocolResult, SessionResult) {
	buf := make([]byte, 16*1024)
	n, err := s.Back.Read(buf)
	if err != nil {
		return Continue, SessionClose
	}
	if n == 0 {
		return Continue, SessionContinue
	}
	s.Touch()
	s.Metrics.BytesFromBack += uint64(n)

	if !p.respDone {
		if _, werr := s.BackIn.Write(buf[:n]); werr == nil {
			state := p.respParser.Parse(s.BackIn.Bytes())
			if state == httpmsg.StateHeadersParsed && p.framer == nil {
				resp, verr := p.respParser.Validate(s.BackIn.Bytes())
				if verr == nil {
					p.framer = httpmsg.NewBodyFramer(resp.Framing, resp.BodyEnds)
				}
			}
			if p.framer != nil {
				if ferr := p.framer.Advance(s.BackIn.Bytes()); ferr == nil && p.framer.Done() {
					p.respDone = true
				}
			}
		} else if s.MetricsReg != nil {
			s.MetricsReg.ParseError("response")
		}
	}

	if _, werr := s.Front.Write(buf[:n]); werr != nil {
		return Continue, SessionCloseBackend
	}
	s.Metrics.BytesToFront += uint64(n)

	if p.respDone {
		return p.completeExchange(s)
	}
	return Continue, SessionContinue
}

// completeExchange decides, once a full response has been shuttled,
// whether the pair was keep-alive on both legs; if so it rewinds the
// buffers and hands the session back to a fresh Http variant instead of
// closing.
func (p *Pipe) completeExchange(s *Session) (ProtocolResult, SessionResult) {
	if s.MetricsReg != nil {
		s.MetricsReg.ResponseCompleted(s.Metrics.Duration())
	}

	resp, verr := p.respParser.Validate(s.BackIn.Bytes())
	if verr != nil {
		return Continue, SessionClose
	}

	if p.reqFraming.Close || resp.Framing.Close || resp.Framing.ReadUntilClose {
		return Continue, SessionClose
	}

	s.ResetForKeepAlive()
	p.next = NewHttp()
	return Upgrade, SessionContinue
}

func (p *Pipe) OnWritable(s *Session) (ProtocolResult, SessionResult) {
	return Continue, SessionContinue
}

func (p *Pipe) OnTimeout(s *Session) (ProtocolResult, SessionResult) {
	return Continue, SessionClose
}
