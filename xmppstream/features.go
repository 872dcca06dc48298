// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream

import (
	"encoding/xml"

	"mellium.im/xmlstream"

	"mellium.im/stanzastream/internal/ns"
	"mellium.im/stanzastream/stream"
)

// Features is the set of stream features advertised by a responding entity.
type Features struct {
	StartTLS         bool
	StartTLSRequired bool
	Mechanisms       []string
	Bind             bool
	SM               bool

	// Other holds the names of any advertised features not listed above.
	Other []xml.Name
}

// Has reports whether a feature with the given name was advertised.
func (f Features) Has(name xml.Name) bool {
	switch name {
	case xml.Name{Space: ns.StartTLS, Local: "starttls"}:
		return f.StartTLS
	case xml.Name{Space: ns.SASL, Local: "mechanisms"}:
		return len(f.Mechanisms) > 0
	case xml.Name{Space: ns.Bind, Local: "bind"}:
		return f.Bind
	case xml.Name{Space: ns.SM, Local: "sm"}:
		return f.SM
	}
	for _, other := range f.Other {
		if other == name {
			return true
		}
	}
	return false
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (f Features) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if f.StartTLS {
		var req xml.TokenReader
		if f.StartTLSRequired {
			req = xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Local: "required"}})
		}
		inner = append(inner, xmlstream.Wrap(req, xml.StartElement{Name: xml.Name{Space: ns.StartTLS, Local: "starttls"}}))
	}
	if len(f.Mechanisms) > 0 {
		mechs := make([]xml.TokenReader, 0, len(f.Mechanisms))
		for _, m := range f.Mechanisms {
			mechs = append(mechs, xmlstream.Wrap(
				xmlstream.Token(xml.CharData(m)),
				xml.StartElement{Name: xml.Name{Local: "mechanism"}},
			))
		}
		inner = append(inner, xmlstream.Wrap(
			xmlstream.MultiReader(mechs...),
			xml.StartElement{Name: xml.Name{Space: ns.SASL, Local: "mechanisms"}},
		))
	}
	if f.Bind {
		inner = append(inner, xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ns.Bind, Local: "bind"}}))
	}
	if f.SM {
		inner = append(inner, xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ns.SM, Local: "sm"}}))
	}
	for _, other := range f.Other {
		inner = append(inner, xmlstream.Wrap(nil, xml.StartElement{Name: other}))
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{Name: xml.Name{Space: stream.NS, Local: "features"}},
	)
}

// UnmarshalXML satisfies the xml.Unmarshaler interface.
func (f *Features) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		StartTLS *struct {
			Required *struct{} `xml:"required"`
		} `xml:"urn:ietf:params:xml:ns:xmpp-tls starttls"`
		Mechanisms *struct {
			List []string `xml:"mechanism"`
		} `xml:"urn:ietf:params:xml:ns:xmpp-sasl mechanisms"`
		Bind *struct{} `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
		SM   *struct{} `xml:"urn:xmpp:sm:3 sm"`
		Any  []struct {
			XMLName xml.Name
		} `xml:",any"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	*f = Features{}
	if raw.StartTLS != nil {
		f.StartTLS = true
		f.StartTLSRequired = raw.StartTLS.Required != nil
	}
	if raw.Mechanisms != nil {
		f.Mechanisms = raw.Mechanisms.List
	}
	f.Bind = raw.Bind != nil
	f.SM = raw.SM != nil
	for _, other := range raw.Any {
		f.Other = append(f.Other, other.XMLName)
	}
	return nil
}
