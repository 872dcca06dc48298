// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream

import (
	"encoding/xml"

	"mellium.im/stanzastream/jid"
)

// DefaultVersion is the XMPP version spoken by this module.
var DefaultVersion = Version{Major: 1, Minor: 0}

// Info contains metadata extracted from a stream start token.
type Info struct {
	Name    xml.Name
	XMLNS   string
	To      *jid.JID
	From    *jid.JID
	ID      string
	Version Version
	Lang    string
}

// FromStartElement sets the data in Info from the provided StartElement.
// The returned error, if any, is always a stream Error suitable for sending
// to the peer.
// If contentNS is not empty the default namespace of the stream must match it.
// The version is recorded but not checked, since component streams omit it.
func (i *Info) FromStartElement(s xml.StartElement, contentNS string) error {
	switch {
	case s.Name.Local != "stream":
		return BadFormat
	case s.Name.Space != NS:
		return InvalidNamespace
	}
	i.Name = s.Name
	for _, attr := range s.Attr {
		switch attr.Name {
		case xml.Name{Local: "to"}:
			i.To = &jid.JID{}
			if err := i.To.UnmarshalXMLAttr(attr); err != nil {
				return ImproperAddressing
			}
		case xml.Name{Local: "from"}:
			i.From = &jid.JID{}
			if err := i.From.UnmarshalXMLAttr(attr); err != nil {
				return ImproperAddressing
			}
		case xml.Name{Local: "id"}:
			i.ID = attr.Value
		case xml.Name{Local: "version"}:
			if err := (&i.Version).UnmarshalXMLAttr(attr); err != nil {
				return BadFormat
			}
		case xml.Name{Local: "xmlns"}:
			i.XMLNS = attr.Value
		case xml.Name{Space: "xmlns", Local: "stream"}:
			if attr.Value != NS {
				return InvalidNamespace
			}
		case xml.Name{Space: "xml", Local: "lang"}, xml.Name{Space: "http://www.w3.org/XML/1998/namespace", Local: "lang"}:
			i.Lang = attr.Value
		}
	}
	if contentNS != "" && i.XMLNS != contentNS {
		return InvalidNamespace
	}
	return nil
}
