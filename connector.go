// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"mellium.im/stanzastream/client"
	"mellium.im/stanzastream/component"
	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/xmppstream"
)

// Connection is an authenticated stream produced by a Connector.
type Connection struct {
	Stream   *xmppstream.Stream[xmppstream.Element]
	Features xmppstream.Features

	// JID is the identity the stream was authenticated for.
	// If the server offers resource binding its resourcepart, if any, is
	// requested.
	JID *jid.JID
}

// A Connector produces authenticated streams for a StanzaStream.
//
// Every stream must be authenticated for the same entity, since the queue of
// a previous stream is flushed on the next one.
// Connectors must not bind a resource; the StanzaStream does that.
// opts must be passed to the stream so that it uses the StanzaStream's
// logger and timeouts.
type Connector interface {
	Connect(ctx context.Context, addr *jid.JID, opts ...xmppstream.Option) (*Connection, error)
}

// ConnectorFunc is an adapter to allow the use of ordinary functions as
// connectors.
type ConnectorFunc func(ctx context.Context, addr *jid.JID, opts ...xmppstream.Option) (*Connection, error)

// Connect calls f(ctx, addr, opts...).
func (f ConnectorFunc) Connect(ctx context.Context, addr *jid.JID, opts ...xmppstream.Option) (*Connection, error) {
	return f(ctx, addr, opts...)
}

// ClientConnector dials a server and logs in as a client.
type ClientConnector struct {
	Dialer Dialer
	Config client.Config
}

// Connect dials the server for addr and logs in with the configured
// credentials.
// The JID of the configuration is replaced by addr.
func (c *ClientConnector) Connect(ctx context.Context, addr *jid.JID, opts ...xmppstream.Option) (*Connection, error) {
	conn, err := c.Dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	cfg := c.Config
	cfg.JID = addr
	login, err := client.Login(ctx, conn, cfg, opts...)
	if err != nil {
		/* #nosec */
		conn.Close()
		return nil, err
	}
	return &Connection{Stream: login.Stream, Features: login.Features, JID: addr}, nil
}

// ComponentConnector dials a server and performs the component handshake.
// The Dialer must have an Addr.
type ComponentConnector struct {
	Dialer Dialer
	Secret string
}

// Connect dials the server and authenticates the component addr.
// Component streams offer no features, so no resource is bound.
func (c *ComponentConnector) Connect(ctx context.Context, addr *jid.JID, opts ...xmppstream.Option) (*Connection, error) {
	if c.Dialer.Addr == "" {
		return nil, errors.New("stanzastream: component connector needs an address to dial")
	}
	conn, err := c.Dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	login, err := component.Login(ctx, conn, addr, c.Secret, opts...)
	if err != nil {
		/* #nosec */
		conn.Close()
		return nil, err
	}
	return &Connection{Stream: login.Stream, JID: login.JID}, nil
}

// BreakerConnector stops calling a failing connector for a while.
// While the breaker is open Connect fails with a *xmppstream.HardError so
// that the StanzaStream keeps backing off.
type BreakerConnector struct {
	next Connector
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerConnector wraps next in a circuit breaker configured by st.
func NewBreakerConnector(next Connector, st gobreaker.Settings) *BreakerConnector {
	if st.Name == "" {
		st.Name = "stanzastream-connector"
	}
	return &BreakerConnector{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// State returns the state of the circuit breaker.
func (b *BreakerConnector) State() gobreaker.State {
	return b.cb.State()
}

// Connect calls the wrapped connector unless the breaker is open.
func (b *BreakerConnector) Connect(ctx context.Context, addr *jid.JID, opts ...xmppstream.Option) (*Connection, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Connect(ctx, addr, opts...)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, &xmppstream.HardError{Err: err}
	case err != nil:
		return nil, err
	}
	return v.(*Connection), nil
}
