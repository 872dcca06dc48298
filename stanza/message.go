// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"

	"mellium.im/xmlstream"

	"mellium.im/stanzastream/jid"
)

// Message is an XMPP stanza that contains a payload for direct one-to-one
// communication with another network entity. It is often used for sending chat
// messages to an individual or group chat server, or for notifications and
// alerts that don't require a response.
type Message struct {
	XMLName xml.Name    `xml:"message"`
	ID      string      `xml:"id,attr,omitempty"`
	To      *jid.JID    `xml:"to,attr,omitempty"`
	From    *jid.JID    `xml:"from,attr,omitempty"`
	Lang    string      `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    MessageType `xml:"type,attr,omitempty"`
	Payload []byte      `xml:",innerxml"`
}

// MessageType is the type of a message stanza.
type MessageType string

// A list of possible message types.
const (
	// NormalMessage is a standalone message that is sent outside the context
	// of a one-to-one conversation or groupchat.
	NormalMessage MessageType = "normal"

	// ChatMessage represents a message sent in the context of a one-to-one
	// chat session.
	ChatMessage MessageType = "chat"

	// ErrorMessage is generated by an entity that experiences an error when
	// processing a message received from another entity.
	ErrorMessage MessageType = "error"

	// GroupChatMessage is sent in the context of a multi-user chat
	// environment.
	GroupChatMessage MessageType = "groupchat"

	// HeadlineMessage is used to provide an alert, a notification, or other
	// transient information.
	HeadlineMessage MessageType = "headline"
)

// StartElement converts the Message into an XML token.
func (m *Message) StartElement() xml.StartElement {
	return header{
		ID: m.ID, To: m.To, From: m.From, Lang: m.Lang, Type: string(m.Type),
	}.start(xml.Name{Space: m.XMLName.Space, Local: "message"})
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (m *Message) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(Payload(m.Payload), m.StartElement())
}
