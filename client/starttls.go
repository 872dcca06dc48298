// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"crypto/tls"
	"io"
	"net"

	"github.com/pkg/errors"

	"mellium.im/stanzastream/xmppstream"
)

// Upgrader secures a transport after the server agreed to STARTTLS.
type Upgrader func(ctx context.Context, rwc io.ReadWriteCloser) (io.ReadWriteCloser, error)

// TLSUpgrader returns an Upgrader that performs a TLS client handshake using
// cfg.
// The transport must be a net.Conn.
func TLSUpgrader(cfg *tls.Config) Upgrader {
	return func(ctx context.Context, rwc io.ReadWriteCloser) (io.ReadWriteCloser, error) {
		conn, ok := rwc.(net.Conn)
		if !ok {
			return nil, errors.Errorf("client: cannot start TLS on %T", rwc)
		}
		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, &xmppstream.HardError{Err: errors.Wrap(err, "TLS handshake")}
		}
		return tlsConn, nil
	}
}

type connectionStater interface {
	ConnectionState() tls.ConnectionState
}

// tlsState returns the TLS state of rwc, if it has any.
func tlsState(rwc io.ReadWriteCloser) *tls.ConnectionState {
	if cs, ok := rwc.(connectionStater); ok {
		state := cs.ConnectionState()
		return &state
	}
	return nil
}

// startTLS asks the server to begin TLS and upgrades the transport.
// Nothing else is exchanged on the plain transport.
func startTLS(ctx context.Context, s *xmppstream.Stream[xmppstream.Element], upgrade Upgrader) (io.ReadWriteCloser, error) {
	if err := s.Send(ctx, xmppstream.StartTLS{Kind: xmppstream.StartTLSRequest}); err != nil {
		return nil, err
	}
	el, err := xmppstream.Await(ctx, s, func(el xmppstream.Element) (bool, error) {
		_, ok := el.(xmppstream.StartTLS)
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	if el.(xmppstream.StartTLS).Kind != xmppstream.StartTLSProceed {
		return nil, &xmppstream.ProtocolError{Kind: xmppstream.NoTLS, Err: errors.New("server refused STARTTLS")}
	}
	rwc, err := s.Detach()
	if err != nil {
		return nil, err
	}
	log := s.Logger()
	log.Debug().Msg("upgrading transport")
	return upgrade(ctx, rwc)
}
