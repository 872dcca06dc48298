// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream

import (
	"bufio"
	"context"
	"encoding/xml"
	"io"
	"sync"
	"time"

	"github.com/armon/circbuf"
	"github.com/pkg/errors"
	"mellium.im/xmlstream"

	"mellium.im/stanzastream/stream"
)

// transport records what the reader observed on the underlying connection.
type transport struct {
	rwc      io.ReadWriteCloser
	activity chan struct{}

	mu      sync.Mutex
	err     error
	capture *circbuf.Buffer
}

func (t *transport) Read(p []byte) (int, error) {
	n, err := t.rwc.Read(p)
	if n > 0 {
		select {
		case t.activity <- struct{}{}:
		default:
		}
	}
	if n > 0 || err != nil {
		t.mu.Lock()
		if n > 0 && t.capture != nil {
			// circbuf never fails to write.
			_, _ = t.capture.Write(p[:n])
		}
		if err != nil && t.err == nil {
			t.err = err
		}
		t.mu.Unlock()
	}
	return n, err
}

func (t *transport) readErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *transport) captured() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.capture == nil {
		return ""
	}
	return t.capture.String()
}

type result struct {
	v   interface{}
	err error
}

// session is the state shared by every negotiation step and the final stream.
// The reading side (read, await, restart, detach) must be driven by a single
// goroutine; writes may come from any goroutine.
type session struct {
	t    *transport
	r    *bufio.Reader
	d    *xml.Decoder
	opts options

	wmu sync.Mutex
	e   *xml.Encoder

	pending chan result
	stage   int
	err     error
}

func newSession(rwc io.ReadWriteCloser, opts options) *session {
	t := &transport{rwc: rwc, activity: make(chan struct{}, 1)}
	if opts.capture > 0 {
		buf, err := circbuf.NewBuffer(opts.capture)
		if err != nil {
			opts.log.Warn().Err(err).Msg("disabling wire capture")
		} else {
			t.capture = buf
		}
	}
	s := &session{t: t, r: bufio.NewReader(t), opts: opts}
	s.reset()
	return s
}

// reset discards all XML state so that a new stream can begin on the same
// transport.
func (s *session) reset() {
	s.d = xml.NewDecoder(s.r)
	s.wmu.Lock()
	s.e = xml.NewEncoder(s.t.rwc)
	s.wmu.Unlock()
	s.stage = 0
}

// busy reports whether a read is in flight or input is waiting to be decoded.
func (s *session) busy() bool {
	return s.pending != nil || s.r.Buffered() > 0
}

func (s *session) start(fn func() (interface{}, error)) chan result {
	if s.pending == nil {
		ch := make(chan result, 1)
		go func() {
			v, err := fn()
			ch <- result{v: v, err: err}
		}()
		s.pending = ch
	}
	return s.pending
}

func (s *session) fail(err error) error {
	if s.err == nil {
		s.err = err
		var parse *ParseError
		if errors.As(err, &parse) {
			s.opts.log.Debug().Err(err).Str("wire", s.t.captured()).Msg("parse error")
		}
	}
	return s.err
}

// await waits for fn to finish, bounded by the response timeout.
func (s *session) await(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := s.start(fn)
	timer := time.NewTimer(s.opts.timeouts.ResponseTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		s.pending = nil
		if Terminal(r.err) {
			s.fail(r.err)
		}
		return r.v, r.err
	case <-timer.C:
		return nil, s.fail(&HardError{Err: errUnresponsive})
	}
}

// read waits for fn to finish.
// Silence for the read timeout yields ErrSoftTimeout and leaves fn running.
// After that the peer has the response timeout to send anything at all.
func (s *session) read(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := s.start(fn)
	to := s.opts.timeouts
	wait := to.ReadTimeout
	if s.stage > 0 {
		wait = to.ResponseTimeout / 2
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			s.pending = nil
			s.stage = 0
			if Terminal(r.err) {
				s.fail(r.err)
			}
			return r.v, r.err
		case <-s.t.activity:
			s.stage = 0
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(to.ReadTimeout)
		case <-timer.C:
			switch s.stage {
			case 0:
				s.stage = 1
				return nil, ErrSoftTimeout
			case 1:
				s.stage = 2
				s.opts.log.Warn().Dur("remaining", to.ResponseTimeout/2).Msg("peer is not responding")
				timer.Reset(to.ResponseTimeout / 2)
			default:
				return nil, s.fail(&HardError{Err: errUnresponsive})
			}
		}
	}
}

// classify turns a decoder error into a read outcome.
func (s *session) classify(err error) error {
	if terr := s.t.readErr(); terr != nil {
		return &HardError{Err: terr}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &HardError{Err: err}
	}
	var syntax *xml.SyntaxError
	if errors.As(err, &syntax) {
		return &ParseError{Condition: stream.NotWellFormed, Err: err}
	}
	return &ParseError{Condition: stream.InvalidXML, Err: err}
}

func (s *session) write(el xmlstream.Marshaler) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := xmlstream.Copy(s.e, el.TokenReader()); err != nil {
		return &HardError{Err: err}
	}
	return nil
}

func (s *session) flush() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.e.Flush(); err != nil {
		return &HardError{Err: err}
	}
	return nil
}

// writeRaw flushes any encoded elements and then writes raw markup that the
// encoder cannot produce on its own, such as a lone stream header or footer.
func (s *session) writeRaw(raw string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.e.Flush(); err != nil {
		return &HardError{Err: err}
	}
	if _, err := io.WriteString(s.t.rwc, raw); err != nil {
		return &HardError{Err: err}
	}
	return nil
}

// abort reports cond to the peer and ends our side of the stream.
// Failures are ignored since the stream is already being torn down.
func (s *session) abort(cond stream.Error) {
	_ = s.write(StreamError{Error: cond})
	_ = s.writeRaw(footer)
}
