// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package component_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/stanzastream/component"
	"mellium.im/stanzastream/internal/xmpptest"
	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/stanza"
	"mellium.im/stanzastream/stream"
	"mellium.im/stanzastream/xmppstream"
)

const secret = "s3cr3t"

var addr = jid.MustParse("pubsub.example.net")

var digestTests = [...]struct {
	id     string
	secret string
	digest string
}{
	0: {digest: "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
	1: {id: "a", secret: "bc", digest: "a9993e364706816aba3e25717850c26c9cd0d89d"},
	2: {id: "abc", digest: "a9993e364706816aba3e25717850c26c9cd0d89d"},
}

func TestDigest(t *testing.T) {
	for i, tc := range digestTests {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			assert.Equal(t, tc.digest, component.Digest(tc.id, tc.secret))
		})
	}
}

// serveComponent answers a component stream header with no version and no
// features, then runs reply with the handshake the component sent.
func serveComponent(t *testing.T, reply func(ctx context.Context, p *xmpptest.Peer, h xmppstream.Handshake) error) *jid.JID {
	t.Helper()
	done := make(chan struct{})
	conn := xmpptest.Serve(t, func(ctx context.Context, p *xmpptest.Peer) error {
		defer close(done)
		p.Header = xmppstream.Header{From: addr}
		if err := p.Accept(ctx, nil); err != nil {
			return err
		}
		el, err := p.Read(ctx)
		if err != nil {
			return err
		}
		h, ok := el.(xmppstream.Handshake)
		if !ok {
			return errors.Errorf("expected handshake, got %#v", el)
		}
		return reply(ctx, p, h)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := component.Login(ctx, conn, addr, secret, xmppstream.WithLogger(xmpptest.Logger(t, "component")))
	if err != nil {
		t.Logf("login failed: %v", err)
		return nil
	}
	assert.Equal(t, addr.String(), c.JID.String())
	assert.Equal(t, component.NSAccept, c.Stream.Info().XMLNS)
	require.NoError(t, c.Stream.SendFooter())
	<-done
	return c.JID
}

func TestLoginHandshakeAccepted(t *testing.T) {
	var got string
	j := serveComponent(t, func(ctx context.Context, p *xmpptest.Peer, h xmppstream.Handshake) error {
		got = h.Digest
		if h.Digest != component.Digest(p.Stream.ID(), secret) {
			return p.Stream.SendError(stream.NotAuthorized)
		}
		if err := p.Send(ctx, xmppstream.Handshake{}); err != nil {
			return err
		}
		return p.Drain(ctx)
	})
	require.NotNil(t, j)
	assert.Len(t, got, 40)
}

var loginFailureTests = [...]struct {
	reply func(ctx context.Context, p *xmpptest.Peer) error
	cond  error
}{
	0: {
		reply: func(_ context.Context, p *xmpptest.Peer) error {
			return p.Stream.SendError(stream.NotAuthorized)
		},
		cond: stream.NotAuthorized,
	},
	1: {
		reply: func(ctx context.Context, p *xmpptest.Peer) error {
			return p.Send(ctx, &stanza.Message{ID: "early", Type: stanza.NormalMessage})
		},
	},
	2: {
		reply: func(ctx context.Context, p *xmpptest.Peer) error {
			return p.Send(ctx, xmppstream.SM{Kind: xmppstream.SMRequest})
		},
	},
}

func TestLoginFailure(t *testing.T) {
	for i, tc := range loginFailureTests {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			conn := xmpptest.Serve(t, func(ctx context.Context, p *xmpptest.Peer) error {
				p.Header = xmppstream.Header{From: addr}
				if err := p.Accept(ctx, nil); err != nil {
					return err
				}
				if _, err := p.Read(ctx); err != nil {
					return err
				}
				if err := tc.reply(ctx, p); err != nil {
					return err
				}
				return p.Drain(ctx)
			})
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err := component.Login(ctx, conn, addr, secret)
			var aerr *xmppstream.AuthError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, xmppstream.ComponentFail, aerr.Kind)
			if tc.cond != nil {
				assert.ErrorIs(t, err, tc.cond)
			}
		})
	}
}
