// Copyright 2014 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package jid implements XMPP addresses (historically called "Jabber ID's" or
// "JID's") as described in RFC 7622.
//
// Addresses are used for the stream header 'to' and 'from' attributes, as the
// identity a session authenticates as and as the full JID returned by
// resource binding.
package jid // import "mellium.im/stanzastream/jid"
