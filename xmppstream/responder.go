// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"mellium.im/stanzastream/stream"
)

// AcceptedStream is a transport on which the initiating entity's header has
// been read and accepted.
type AcceptedStream[T any] struct {
	s     *session
	codec Codec[T]
	info  stream.Info
	used  atomic.Bool
}

// Accept reads the initiating entity's header from rwc.
// If the header is unacceptable a header, a stream error and a footer are
// written and a *ProtocolError is returned.
func Accept[T any](ctx context.Context, rwc io.ReadWriteCloser, codec Codec[T], opts ...Option) (*AcceptedStream[T], error) {
	return accept(ctx, newSession(rwc, newOptions(opts)), codec)
}

func accept[T any](ctx context.Context, s *session, codec Codec[T]) (*AcceptedStream[T], error) {
	v, err := s.await(ctx, func() (interface{}, error) {
		return s.readHeader("")
	})
	var herr *headerError
	switch {
	case errors.As(err, &herr):
		// A stream error can only follow a stream header of our own.
		_ = s.writeRaw(Header{ID: uuid.NewString(), Version: stream.DefaultVersion}.String())
		s.abort(herr.cond)
		return nil, herr.protocolError()
	case err != nil:
		return nil, err
	}
	info := v.(stream.Info)
	s.opts.log.Debug().Str("ns", info.XMLNS).Stringer("to", info.To).Msg("accepted stream header")
	return &AcceptedStream[T]{s: s, codec: codec, info: info}, nil
}

// Info returns the initiating entity's stream header.
func (a *AcceptedStream[T]) Info() stream.Info {
	return a.info
}

// SendHeader sends our reply header.
// If h has no ID a random one is assigned.
// If h has no content namespace the initiating entity's is used.
func (a *AcceptedStream[T]) SendHeader(ctx context.Context, h Header) (*PendingFeaturesSend[T], error) {
	if !a.used.CompareAndSwap(false, true) {
		return nil, ErrConsumed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.NS == "" {
		h.NS = a.info.XMLNS
	}
	if err := a.s.writeRaw(h.String()); err != nil {
		return nil, err
	}
	return &PendingFeaturesSend[T]{s: a.s, codec: a.codec, info: a.info, id: h.ID}, nil
}

// PendingFeaturesSend is a stream whose headers have been exchanged but whose
// features have not been sent.
type PendingFeaturesSend[T any] struct {
	s     *session
	codec Codec[T]
	info  stream.Info
	id    string
	used  atomic.Bool
}

// ID returns the stream ID we sent.
func (p *PendingFeaturesSend[T]) ID() string {
	return p.id
}

// SendFeatures sends f and flushes it.
func (p *PendingFeaturesSend[T]) SendFeatures(ctx context.Context, f Features) (*Stream[T], error) {
	if !p.used.CompareAndSwap(false, true) {
		return nil, ErrConsumed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.s.write(f); err != nil {
		return nil, err
	}
	if err := p.s.flush(); err != nil {
		return nil, err
	}
	return newStream(p.s, p.codec, p.info, p.id), nil
}

// SkipFeatures returns the stream without sending features.
func (p *PendingFeaturesSend[T]) SkipFeatures() (*Stream[T], error) {
	if !p.used.CompareAndSwap(false, true) {
		return nil, ErrConsumed
	}
	return newStream(p.s, p.codec, p.info, p.id), nil
}
