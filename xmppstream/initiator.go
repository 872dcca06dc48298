// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"

	"mellium.im/stanzastream/stream"
)

// InitiatingStream is a transport on which we have not yet sent a header.
type InitiatingStream[T any] struct {
	s     *session
	codec Codec[T]
	used  atomic.Bool
}

// Initiate begins negotiating a stream over rwc as the initiating entity.
// Elements read from the resulting stream are decoded with codec.
func Initiate[T any](rwc io.ReadWriteCloser, codec Codec[T], opts ...Option) *InitiatingStream[T] {
	return &InitiatingStream[T]{s: newSession(rwc, newOptions(opts)), codec: codec}
}

// SendHeader sends h and waits for the peer's header.
// If the peer's header is unacceptable a stream error is sent, our side of
// the stream is closed and a *ProtocolError is returned.
func (i *InitiatingStream[T]) SendHeader(ctx context.Context, h Header) (*PendingFeaturesRecv[T], error) {
	if !i.used.CompareAndSwap(false, true) {
		return nil, ErrConsumed
	}
	s := i.s
	if err := s.writeRaw(h.String()); err != nil {
		return nil, err
	}
	contentNS := h.contentNS()
	v, err := s.await(ctx, func() (interface{}, error) {
		return s.readHeader(contentNS)
	})
	var herr *headerError
	switch {
	case errors.As(err, &herr):
		s.abort(herr.cond)
		return nil, herr.protocolError()
	case err != nil:
		return nil, err
	}
	info := v.(stream.Info)
	if herr = checkVersion(h.Version, info); herr == nil && info.ID == "" {
		herr = &headerError{kind: NoStreamID, cond: stream.BadFormat}
	}
	if herr != nil {
		s.abort(herr.cond)
		return nil, herr.protocolError()
	}
	s.opts.log.Debug().Str("id", info.ID).Str("ns", info.XMLNS).Msg("received stream header")
	return &PendingFeaturesRecv[T]{s: s, codec: i.codec, info: info}, nil
}

// PendingFeaturesRecv is a stream whose headers have been exchanged but whose
// features have not been received.
type PendingFeaturesRecv[T any] struct {
	s     *session
	codec Codec[T]
	info  stream.Info
	used  atomic.Bool
}

// Info returns the peer's stream header.
func (p *PendingFeaturesRecv[T]) Info() stream.Info {
	return p.info
}

// RecvFeatures reads the peer's stream features.
// If the first element is anything else a *ProtocolError is returned and no
// stream is produced.
func (p *PendingFeaturesRecv[T]) RecvFeatures(ctx context.Context) (*Stream[T], Features, error) {
	if !p.used.CompareAndSwap(false, true) {
		return nil, Features{}, ErrConsumed
	}
	s := p.s
	v, err := s.await(ctx, func() (interface{}, error) {
		return s.readFeatures()
	})
	if err != nil {
		return nil, Features{}, err
	}
	features := v.(Features)
	s.opts.log.Debug().
		Bool("starttls", features.StartTLS).
		Strs("mechanisms", features.Mechanisms).
		Bool("bind", features.Bind).
		Bool("sm", features.SM).
		Msg("received stream features")
	return newStream(s, p.codec, p.info, p.info.ID), features, nil
}

// SkipFeatures returns the stream without waiting for features.
// Component streams do not advertise any.
func (p *PendingFeaturesRecv[T]) SkipFeatures() (*Stream[T], error) {
	if !p.used.CompareAndSwap(false, true) {
		return nil, ErrConsumed
	}
	return newStream(p.s, p.codec, p.info, p.info.ID), nil
}

func (s *session) readFeatures() (interface{}, error) {
	for {
		tok, err := s.d.Token()
		if err != nil {
			return nil, s.classify(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) == 0 {
				continue
			}
			return nil, &ParseError{Condition: stream.BadFormat, Err: errors.New("character data at stream level")}
		case xml.StartElement:
			switch t.Name {
			case xml.Name{Space: stream.NS, Local: "features"}:
				f := Features{}
				if err := s.d.DecodeElement(&f, &t); err != nil {
					return nil, s.classify(err)
				}
				return f, nil
			case xml.Name{Space: stream.NS, Local: "error"}:
				se := stream.Error{}
				if err := s.d.DecodeElement(&se, &t); err != nil {
					return nil, s.classify(err)
				}
				return nil, &ProtocolError{Kind: PeerStreamError, Err: se}
			}
			if err := s.d.Skip(); err != nil {
				return nil, s.classify(err)
			}
			return nil, &ProtocolError{
				Kind: InvalidToken,
				Err:  errors.Errorf("expected stream features, got %s", t.Name.Local),
			}
		case xml.EndElement:
			if t.Name == (xml.Name{Space: stream.NS, Local: "stream"}) {
				return nil, ErrStreamFooter
			}
			return nil, &ParseError{Condition: stream.NotWellFormed}
		default:
			return nil, &ParseError{Condition: stream.RestrictedXML}
		}
	}
}
