// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/stream"
	"mellium.im/stanzastream/xmppstream"
)

// Connection is an authenticated client stream.
type Connection struct {
	Stream   *xmppstream.Stream[xmppstream.Element]
	Features xmppstream.Features

	// JID is the bound address after Connect and the configured one after
	// Login.
	JID *jid.JID

	// Secure is true if the transport is encrypted.
	Secure bool
}

// Login negotiates a stream over rwc and authenticates it.
// The returned stream has been restarted and its features received, but no
// resource has been bound.
//
// opts are passed to the stream; the configured timeouts apply unless opts
// override them.
func Login(ctx context.Context, rwc io.ReadWriteCloser, cfg Config, opts ...xmppstream.Option) (*Connection, error) {
	if cfg.JID == nil {
		return nil, errors.New("client: no JID configured")
	}
	opts = append([]xmppstream.Option{xmppstream.WithTimeouts(cfg.Timeouts)}, opts...)
	header := xmppstream.Header{
		To:      cfg.JID.Domain(),
		From:    cfg.JID.Bare(),
		Lang:    cfg.Lang,
		Version: stream.DefaultVersion,
	}

	state := tlsState(rwc)
	secure := state != nil
	s, features, err := open(ctx, xmppstream.Initiate(rwc, xmppstream.ElementCodec, opts...), header)
	if err != nil {
		return nil, err
	}
	log := s.Logger()

	switch {
	case features.StartTLS && !secure:
		upgraded, err := startTLS(ctx, s, cfg.upgrader())
		if err != nil {
			return nil, err
		}
		state = tlsState(upgraded)
		secure = true
		s, features, err = open(ctx, xmppstream.Initiate(upgraded, xmppstream.ElementCodec, opts...), header)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("stream encrypted")
	case cfg.RequireTLS && !secure:
		_ = s.SendError(stream.PolicyViolation)
		return nil, &xmppstream.ProtocolError{Kind: xmppstream.NoTLS}
	}

	if err = authenticate(ctx, s, features, cfg, secure, state); err != nil {
		return nil, err
	}
	initiating, err := s.Restart()
	if err != nil {
		return nil, err
	}
	s, features, err = open(ctx, initiating, header)
	if err != nil {
		return nil, err
	}
	log.Info().Stringer("jid", cfg.JID).Msg("logged in")
	return &Connection{Stream: s, Features: features, JID: cfg.JID, Secure: secure}, nil
}

// Connect logs in and binds the configured resource.
func Connect(ctx context.Context, rwc io.ReadWriteCloser, cfg Config, opts ...xmppstream.Option) (*Connection, error) {
	conn, err := Login(ctx, rwc, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if !conn.Features.Bind {
		return nil, &xmppstream.ProtocolError{
			Kind: xmppstream.InvalidBindResponse,
			Err:  errors.New("server does not offer resource binding"),
		}
	}
	conn.JID, err = Bind(ctx, conn.Stream, cfg.Resource)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func open(ctx context.Context, initiating *xmppstream.InitiatingStream[xmppstream.Element], header xmppstream.Header) (*xmppstream.Stream[xmppstream.Element], xmppstream.Features, error) {
	pending, err := initiating.SendHeader(ctx, header)
	if err != nil {
		return nil, xmppstream.Features{}, err
	}
	return pending.RecvFeatures(ctx)
}
