// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package stanzastream keeps a long lived stream of stanzas to an XMPP server.
//
// A StanzaStream obtains authenticated streams from a Connector, binds a
// resource and enables stream management (XEP-0198) when the server offers
// it.
// Stanzas submitted with Send are delivered in order.
// When the connection is lost the StanzaStream reconnects with exponential
// backoff and, if the server allows it, resumes the previous session so that
// stanzas the server did not acknowledge are sent again exactly once.
//
// Received stanzas and changes of the connection are reported as events:
//
//	for {
//		ev, err := s.Next(ctx)
//		if err != nil {
//			return err
//		}
//		switch ev := ev.(type) {
//		case stanzastream.Stanza:
//			handle(ev.Stanza)
//		case stanzastream.Reset:
//			log.Printf("bound to %s", ev.JID)
//		}
//	}
//
// The package is built on the xmppstream package, which negotiates the
// individual streams, and on the client and component packages, which
// authenticate them.
package stanzastream // import "mellium.im/stanzastream"
