// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
	"mellium.im/xmlstream"

	"mellium.im/stanzastream/stream"
)

// Stream is a negotiated XML stream that exchanges whole elements.
//
// Read must not be called concurrently with itself, Restart, or Detach.
// Write, Flush and SendFooter may be called from any goroutine.
type Stream[T any] struct {
	s     *session
	codec Codec[T]
	info  stream.Info
	id    string
	used  atomic.Bool
}

func newStream[T any](s *session, codec Codec[T], info stream.Info, id string) *Stream[T] {
	return &Stream[T]{s: s, codec: codec, info: info, id: id}
}

// Info returns the peer's stream header.
func (s *Stream[T]) Info() stream.Info {
	return s.info
}

// ID returns the stream ID assigned by the responding entity.
func (s *Stream[T]) ID() string {
	return s.id
}

// Read returns the next element or exactly one of the read outcomes:
// ErrSoftTimeout, ErrStreamFooter, *HardError or *ParseError.
// Once a terminal outcome is returned every later call returns it again.
//
// If ctx is canceled the read in flight is kept and picked up by the next
// call.
func (s *Stream[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if s.used.Load() {
		return zero, ErrConsumed
	}
	v, err := s.s.read(ctx, s.next)
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (s *Stream[T]) next() (interface{}, error) {
	d := s.s.d
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, s.s.classify(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) == 0 {
				continue
			}
			return nil, &ParseError{Condition: stream.BadFormat, Err: errors.New("character data at stream level")}
		case xml.StartElement:
			if t.Name == (xml.Name{Space: stream.NS, Local: "stream"}) {
				return nil, &ParseError{Condition: stream.BadFormat, Err: errors.New("unexpected stream restart")}
			}
			v, err := s.codec.Decode(d, t)
			if err != nil {
				return nil, s.s.classify(err)
			}
			return v, nil
		case xml.EndElement:
			if t.Name == (xml.Name{Space: stream.NS, Local: "stream"}) {
				return nil, ErrStreamFooter
			}
			return nil, &ParseError{Condition: stream.NotWellFormed}
		default:
			return nil, &ParseError{Condition: stream.RestrictedXML, Err: fmt.Errorf("unexpected %T", tok)}
		}
	}
}

// Write encodes el without flushing it.
func (s *Stream[T]) Write(ctx context.Context, el xmlstream.Marshaler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.used.Load() {
		return ErrConsumed
	}
	return s.s.write(el)
}

// Flush writes any buffered elements to the transport.
func (s *Stream[T]) Flush() error {
	return s.s.flush()
}

// Send writes el and flushes it.
func (s *Stream[T]) Send(ctx context.Context, el xmlstream.Marshaler) error {
	if err := s.Write(ctx, el); err != nil {
		return err
	}
	return s.Flush()
}

// SendFooter flushes buffered elements and closes our side of the stream.
func (s *Stream[T]) SendFooter() error {
	return s.s.writeRaw(footer)
}

// SendError reports cond to the peer and closes our side of the stream.
func (s *Stream[T]) SendError(cond stream.Error) error {
	if err := s.s.write(StreamError{Error: cond}); err != nil {
		return err
	}
	return s.s.writeRaw(footer)
}

// Close closes the underlying transport.
// Any read in flight fails with a *HardError.
func (s *Stream[T]) Close() error {
	return s.s.t.rwc.Close()
}

// Restart prepares the transport for a new stream, for example after SASL
// authentication succeeded.
// It fails with ErrReadPending if a read is in flight or unread input is
// buffered.
func (s *Stream[T]) Restart() (*InitiatingStream[T], error) {
	if err := s.release(); err != nil {
		return nil, err
	}
	s.s.reset()
	return &InitiatingStream[T]{s: s.s, codec: s.codec}, nil
}

// RestartAccept is the responding entity's version of Restart.
// It waits for the initiating entity's new header.
func (s *Stream[T]) RestartAccept(ctx context.Context) (*AcceptedStream[T], error) {
	if err := s.release(); err != nil {
		return nil, err
	}
	s.s.reset()
	return accept(ctx, s.s, s.codec)
}

// Detach returns the underlying transport so that it can be upgraded, for
// example with TLS.
// It fails with ErrReadPending if a read is in flight or unread input is
// buffered.
func (s *Stream[T]) Detach() (io.ReadWriteCloser, error) {
	if err := s.release(); err != nil {
		return nil, err
	}
	return s.s.t.rwc, nil
}

func (s *Stream[T]) release() error {
	if s.s.busy() {
		return ErrReadPending
	}
	if s.s.err != nil {
		return s.s.err
	}
	if !s.used.CompareAndSwap(false, true) {
		return ErrConsumed
	}
	return s.s.flush()
}
