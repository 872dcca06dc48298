// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"

	"mellium.im/xmlstream"

	"mellium.im/stanzastream/jid"
)

// IQ ("Information Query") is used as a general request response mechanism.
// IQ's are one-to-one, provide get and set semantics, and always require a
// response in the form of a result or an error.
type IQ struct {
	XMLName xml.Name `xml:"iq"`
	ID      string   `xml:"id,attr"`
	To      *jid.JID `xml:"to,attr,omitempty"`
	From    *jid.JID `xml:"from,attr,omitempty"`
	Lang    string   `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    IQType   `xml:"type,attr"`
	Payload []byte   `xml:",innerxml"`
}

// IQType is the type of an IQ stanza.
type IQType string

// A list of possible IQ types.
const (
	// GetIQ is used to query another entity for information.
	GetIQ IQType = "get"

	// SetIQ is used to provide data to another entity.
	SetIQ IQType = "set"

	// ResultIQ is sent in response to a successful get or set IQ.
	ResultIQ IQType = "result"

	// ErrorIQ is sent to report that an error occurred during the delivery or
	// processing of a get or set IQ.
	ErrorIQ IQType = "error"
)

// StartElement converts the IQ into an XML token.
func (iq *IQ) StartElement() xml.StartElement {
	return header{
		ID: iq.ID, To: iq.To, From: iq.From, Lang: iq.Lang, Type: string(iq.Type),
	}.start(xml.Name{Space: iq.XMLName.Space, Local: "iq"})
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (iq *IQ) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(Payload(iq.Payload), iq.StartElement())
}
