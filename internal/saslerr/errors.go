// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package saslerr provides error conditions for the XMPP profile of SASL as
// defined by RFC 6120 §6.5.
package saslerr // import "mellium.im/stanzastream/internal/saslerr"

import (
	"encoding/xml"

	"golang.org/x/text/language"
	"mellium.im/xmlstream"

	"mellium.im/stanzastream/internal/ns"
)

// Condition is a SASL error condition that can be encapsulated by a <failure/>
// element.
type Condition string

// String returns the local name of the condition element.
func (c Condition) String() string {
	return string(c)
}

// Standard SASL error conditions.
const (
	Aborted              Condition = "aborted"
	AccountDisabled      Condition = "account-disabled"
	CredentialsExpired   Condition = "credentials-expired"
	EncryptionRequired   Condition = "encryption-required"
	IncorrectEncoding    Condition = "incorrect-encoding"
	InvalidAuthzID       Condition = "invalid-authzid"
	InvalidMechanism     Condition = "invalid-mechanism"
	MalformedRequest     Condition = "malformed-request"
	MechanismTooWeak     Condition = "mechanism-too-weak"
	NotAuthorized        Condition = "not-authorized"
	TemporaryAuthFailure Condition = "temporary-auth-failure"
)

var known = map[string]Condition{
	string(Aborted):              Aborted,
	string(AccountDisabled):      AccountDisabled,
	string(CredentialsExpired):   CredentialsExpired,
	string(EncryptionRequired):   EncryptionRequired,
	string(IncorrectEncoding):    IncorrectEncoding,
	string(InvalidAuthzID):       InvalidAuthzID,
	string(InvalidMechanism):     InvalidMechanism,
	string(MalformedRequest):     MalformedRequest,
	string(MechanismTooWeak):     MechanismTooWeak,
	string(NotAuthorized):        NotAuthorized,
	string(TemporaryAuthFailure): TemporaryAuthFailure,
}

// Failure represents a SASL error that is marshalable to XML.
type Failure struct {
	Condition Condition
	Lang      language.Tag
	Text      string
}

// Error satisfies the error interface for a Failure. It returns the text string
// if set, or the condition otherwise.
func (f Failure) Error() string {
	if f.Text != "" {
		return f.Text
	}
	return string(f.Condition)
}

// TokenReader satisfies the xmlstream.Marshaler interface for a Failure.
func (f Failure) TokenReader() xml.TokenReader {
	inner := xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Local: string(f.Condition)}})
	if f.Text != "" {
		inner = xmlstream.MultiReader(
			inner,
			xmlstream.Wrap(
				xmlstream.Token(xml.CharData(f.Text)),
				xml.StartElement{
					Name: xml.Name{Local: "text"},
					Attr: []xml.Attr{{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: f.Lang.String()}},
				},
			),
		)
	}
	return xmlstream.Wrap(inner, xml.StartElement{Name: xml.Name{Space: ns.SASL, Local: "failure"}})
}

// MarshalXML satisfies the xml.Marshaler interface for a Failure.
func (f Failure) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	if _, err := xmlstream.Copy(e, f.TokenReader()); err != nil {
		return err
	}
	return e.Flush()
}

// UnmarshalXML satisfies the xml.Unmarshaler interface for a Failure.
// If multiple text elements are present, the one whose xml:lang best matches
// the language already set on f is selected.
// Unknown conditions are kept verbatim.
func (f *Failure) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	decoded := struct {
		Condition []struct {
			XMLName xml.Name
		} `xml:",any"`
		Text []struct {
			Lang string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
			Data string `xml:",chardata"`
		} `xml:"text"`
	}{}
	if err := d.DecodeElement(&decoded, &start); err != nil {
		return err
	}
	for _, c := range decoded.Condition {
		if c.XMLName.Local == "text" {
			continue
		}
		if cond, ok := known[c.XMLName.Local]; ok {
			f.Condition = cond
		} else {
			f.Condition = Condition(c.XMLName.Local)
		}
		break
	}

	switch len(decoded.Text) {
	case 0:
		return nil
	case 1:
		f.Lang, _ = language.Parse(decoded.Text[0].Lang)
		f.Text = decoded.Text[0].Data
		return nil
	}
	tags := make([]language.Tag, 0, len(decoded.Text))
	for _, t := range decoded.Text {
		tag, err := language.Parse(t.Lang)
		if err != nil {
			tag = language.Und
		}
		tags = append(tags, tag)
	}
	_, idx, _ := language.NewMatcher(tags).Match(f.Lang)
	f.Lang = tags[idx]
	f.Text = decoded.Text[idx].Data
	return nil
}
