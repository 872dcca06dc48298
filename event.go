// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/stanza"
	"mellium.im/stanzastream/xmppstream"
)

// Event is emitted by a StanzaStream.
// It is one of Stanza, Reset, Suspended or Resumed.
//
// The end of the session is not an event: Next returns an error and the
// channel returned by Events is closed.
type Event interface {
	event()
}

// Stanza carries a stanza received from the server.
type Stanza struct {
	stanza.Stanza
}

// Reset is emitted when a stream was established with loss of state, either
// the first time or after resumption was not possible.
type Reset struct {
	// JID is the address the stream is bound to.
	JID *jid.JID

	// Features are the features offered on the new stream.
	Features xmppstream.Features
}

// Suspended is emitted when the connection was lost.
// The stream may still be resumed without loss of state.
type Suspended struct{}

// Resumed is emitted when a suspended stream was resumed without loss of
// state.
type Resumed struct{}

func (Stanza) event()    {}
func (Reset) event()     {}
func (Suspended) event() {}
func (Resumed) event()   {}
