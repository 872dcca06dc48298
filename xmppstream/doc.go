// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmppstream negotiates XML stream headers and features and then
// exchanges whole top level elements over the negotiated stream.
//
// Negotiation is expressed as a chain of single use state values.
// An initiating entity calls Initiate, sends its header, and receives the
// peer's features:
//
//	pending, err := xmppstream.Initiate(conn, xmppstream.ElementCodec).SendHeader(ctx, hdr)
//	…
//	s, features, err := pending.RecvFeatures(ctx)
//
// A responding entity calls Accept, replies with its own header and sends its
// features.
// Each state can be used exactly once; calling a method on a state that has
// already been used returns ErrConsumed.
//
// Reading from a Stream yields exactly one outcome per call: an element, or
// one of ErrSoftTimeout, ErrStreamFooter, a *HardError or a *ParseError.
// A soft timeout leaves the stream usable and the read that was in flight is
// picked up again by the next call to Read.
package xmppstream // import "mellium.im/stanzastream/xmppstream"
