// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package stream contains XMPP stream metadata and stream errors as defined by
// RFC 6120 §4.
//
// Most users will not create stream errors directly; they are produced and
// consumed by the xmppstream and stanzastream packages.
package stream // import "mellium.im/stanzastream/stream"

// Namespaces used by XMPP streams and stream errors, provided as a convenience.
const (
	NS      = "http://etherx.jabber.org/streams"
	ErrorNS = "urn:ietf:params:xml:ns:xmpp-streams"
)
