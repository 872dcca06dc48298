// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package component establishes XEP-0114: Jabber Component Protocol
// connections.
package component // import "mellium.im/stanzastream/component"

import (
	"context"
	/* #nosec */
	"crypto/sha1"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"

	"mellium.im/stanzastream/internal/ns"
	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/xmppstream"
)

// NSAccept is the content namespace of component streams.
const NSAccept = ns.Component

// Connection is an authenticated component stream.
type Connection struct {
	Stream *xmppstream.Stream[xmppstream.Element]
	JID    *jid.JID
}

// Digest returns the handshake value for a stream: the hex encoded SHA-1 of
// the stream ID followed by the shared secret.
func Digest(id, secret string) string {
	/* #nosec */
	h := sha1.New()
	// hash.Write never returns an error per the documentation.
	_, _ = io.WriteString(h, id)
	_, _ = io.WriteString(h, secret)
	return hex.EncodeToString(h.Sum(nil))
}

// Login negotiates a component stream for addr over rwc and performs the
// handshake.
//
// Component streams carry no features and no version.
// The server must answer the handshake with an empty handshake; any other
// element, including a stream error, fails the login with an *AuthError of
// kind ComponentFail.
func Login(ctx context.Context, rwc io.ReadWriteCloser, addr *jid.JID, secret string, opts ...xmppstream.Option) (*Connection, error) {
	addr = addr.Domain()
	pending, err := xmppstream.Initiate(rwc, xmppstream.ElementCodec, opts...).
		SendHeader(ctx, xmppstream.Header{To: addr, NS: NSAccept})
	if err != nil {
		return nil, err
	}
	s, err := pending.SkipFeatures()
	if err != nil {
		return nil, err
	}
	log := s.Logger()
	if err = s.Send(ctx, xmppstream.Handshake{Digest: Digest(s.ID(), secret)}); err != nil {
		return nil, err
	}

	for {
		el, err := s.Read(ctx)
		if errors.Is(err, xmppstream.ErrSoftTimeout) {
			continue
		}
		if err != nil {
			return nil, err
		}
		switch v := el.(type) {
		case xmppstream.Handshake:
			log.Info().Stringer("jid", addr).Msg("component authenticated")
			return &Connection{Stream: s, JID: addr}, nil
		case xmppstream.StreamError:
			return nil, &xmppstream.AuthError{Kind: xmppstream.ComponentFail, Err: v.Error}
		default:
			return nil, &xmppstream.AuthError{
				Kind: xmppstream.ComponentFail,
				Err:  errors.Errorf("unexpected %T in reply to handshake", el),
			}
		}
	}
}
