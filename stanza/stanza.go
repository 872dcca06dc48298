// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"mellium.im/xmlstream"

	"mellium.im/stanzastream/internal/ns"
	"mellium.im/stanzastream/jid"
)

// Stanza is implemented by *IQ, *Message and *Presence.
type Stanza interface {
	// StartElement returns the envelope of the stanza.
	StartElement() xml.StartElement

	// TokenReader returns the envelope wrapping the payload.
	TokenReader() xml.TokenReader
}

// Is tests whether name is a valid stanza based on name and space.
// An empty space is accepted since stanzas inherit the stream's default
// namespace when they are written.
func Is(name xml.Name) bool {
	switch name.Space {
	case "", ns.Client, ns.Server, ns.Component:
	default:
		return false
	}
	return name.Local == "iq" || name.Local == "message" || name.Local == "presence"
}

// Decode reads the stanza that begins with start from d.
func Decode(d *xml.Decoder, start xml.StartElement) (Stanza, error) {
	var s Stanza
	switch start.Name.Local {
	case "iq":
		s = &IQ{}
	case "message":
		s = &Message{}
	case "presence":
		s = &Presence{}
	default:
		return nil, fmt.Errorf("stanza: unknown stanza %q", start.Name.Local)
	}
	if err := d.DecodeElement(s, &start); err != nil {
		return nil, err
	}
	return s, nil
}

// header is shared by the three stanza envelopes.
type header struct {
	ID   string
	To   *jid.JID
	From *jid.JID
	Lang string
	Type string
}

func (h header) start(name xml.Name) xml.StartElement {
	attr := make([]xml.Attr, 0, 5)
	if h.ID != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: h.ID})
	}
	if h.To != nil {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "to"}, Value: h.To.String()})
	}
	if h.From != nil {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "from"}, Value: h.From.String()})
	}
	if h.Lang != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: h.Lang})
	}
	if h.Type != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: h.Type})
	}
	return xml.StartElement{Name: name, Attr: attr}
}

// Payload returns a token reader over raw inner XML.
// Namespace declarations are dropped from the tokens because the encoder
// emits them again from the resolved element names.
func Payload(inner []byte) xml.TokenReader {
	if len(bytes.TrimSpace(inner)) == 0 {
		return nil
	}
	d := xml.NewDecoder(bytes.NewReader(inner))
	return xmlstream.ReaderFunc(func() (xml.Token, error) {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			attr := start.Attr[:0:0]
			for _, a := range start.Attr {
				if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
					continue
				}
				attr = append(attr, a)
			}
			start.Attr = attr
			return start, nil
		}
		return xml.CopyToken(tok), nil
	})
}
