// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package stanza contains the envelopes of the three XMPP stanzas.
//
// Stanzas (Message, Presence, and IQ) are the "primitives" of XMPP. Messages
// are used to send data that is fire-and-forget such as chat messages,
// Presence is used as a general broadcast and publish-subscribe mechanism, and
// IQ (Info-Query) is used as a request response mechanism.
//
// Payloads are carried opaquely as inner XML; their semantics belong to the
// application.
package stanza // import "mellium.im/stanzastream/stanza"
