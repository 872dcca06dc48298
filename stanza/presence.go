// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"

	"mellium.im/xmlstream"

	"mellium.im/stanzastream/jid"
)

// Presence is an XMPP stanza that is used as an indication that an entity is
// available for communication. It can be directed (one-to-one), or used as a
// broadcast mechanism (one-to-many).
type Presence struct {
	XMLName xml.Name     `xml:"presence"`
	ID      string       `xml:"id,attr,omitempty"`
	To      *jid.JID     `xml:"to,attr,omitempty"`
	From    *jid.JID     `xml:"from,attr,omitempty"`
	Lang    string       `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    PresenceType `xml:"type,attr,omitempty"`
	Payload []byte       `xml:",innerxml"`
}

// PresenceType is the type of a presence stanza.
// It should normally be one of the constants defined in this package.
type PresenceType string

const (
	// AvailablePresence is a special case that signals that the entity is
	// available for communication.
	AvailablePresence PresenceType = ""

	// ErrorPresence indicates that an error has occurred regarding processing
	// of a previously sent presence stanza.
	ErrorPresence PresenceType = "error"

	// ProbePresence is a request for an entity's current presence.
	ProbePresence PresenceType = "probe"

	// SubscribePresence is sent when the sender wishes to subscribe to the
	// recipient's presence.
	SubscribePresence PresenceType = "subscribe"

	// SubscribedPresence indicates that the sender has allowed the recipient
	// to receive future presence broadcasts.
	SubscribedPresence PresenceType = "subscribed"

	// UnavailablePresence indicates that the sender is no longer available for
	// communication.
	UnavailablePresence PresenceType = "unavailable"

	// UnsubscribePresence indicates that the sender is unsubscribing from the
	// receiver's presence.
	UnsubscribePresence PresenceType = "unsubscribe"

	// UnsubscribedPresence indicates that the subscription request has been
	// denied, or a previously granted subscription has been revoked.
	UnsubscribedPresence PresenceType = "unsubscribed"
)

// StartElement converts the Presence into an XML token.
func (p *Presence) StartElement() xml.StartElement {
	return header{
		ID: p.ID, To: p.To, From: p.From, Lang: p.Lang, Type: string(p.Type),
	}.start(xml.Name{Space: p.XMLName.Space, Local: "presence"})
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (p *Presence) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(Payload(p.Payload), p.StartElement())
}
