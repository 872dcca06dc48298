// Copyright 2015 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream

import (
	"encoding/xml"

	"mellium.im/xmlstream"
)

// A list of stream errors defined in RFC 6120 §4.9.3
var (
	// BadFormat is used when the entity has sent XML that cannot be processed.
	BadFormat = Error{Err: "bad-format"}

	// BadNamespacePrefix is sent when an entity has sent an unsupported
	// namespace prefix.
	BadNamespacePrefix = Error{Err: "bad-namespace-prefix"}

	// Conflict is sent when a new stream conflicts with an existing stream.
	Conflict = Error{Err: "conflict"}

	// ConnectionTimeout results when one party believes the other has
	// permanently lost the ability to communicate over the stream.
	ConnectionTimeout = Error{Err: "connection-timeout"}

	// HostGone is sent when the 'to' address is no longer serviced.
	HostGone = Error{Err: "host-gone"}

	// HostUnknown is sent when the 'to' address is not serviced.
	HostUnknown = Error{Err: "host-unknown"}

	// ImproperAddressing is used when an address is missing or invalid.
	ImproperAddressing = Error{Err: "improper-addressing"}

	// InternalServerError is sent when the server has experienced a
	// misconfiguration or other internal error.
	InternalServerError = Error{Err: "internal-server-error"}

	// InvalidFrom is sent when the 'from' address does not match an
	// authorized JID or validated domain.
	InvalidFrom = Error{Err: "invalid-from"}

	// InvalidNamespace is sent when the stream or content namespace is not
	// supported.
	InvalidNamespace = Error{Err: "invalid-namespace"}

	// InvalidXML may be sent when the entity has sent invalid XML.
	InvalidXML = Error{Err: "invalid-xml"}

	// NotAuthorized may be sent when the entity has attempted to send data
	// before the stream has been authenticated.
	NotAuthorized = Error{Err: "not-authorized"}

	// NotWellFormed may be sent when the entity has sent XML that violates the
	// well-formedness rules of XML or XML namespaces.
	NotWellFormed = Error{Err: "not-well-formed"}

	// PolicyViolation may be sent when an entity has violated some local
	// service policy.
	PolicyViolation = Error{Err: "policy-violation"}

	// RemoteConnectionFailed may be sent when the server is unable to connect
	// to a remote entity needed for authentication or authorization.
	RemoteConnectionFailed = Error{Err: "remote-connection-failed"}

	// Reset is sent when the server requires encryption and authentication to
	// be negotiated again.
	Reset = Error{Err: "reset"}

	// ResourceConstraint may be sent when the server lacks the system
	// resources necessary to service the stream.
	ResourceConstraint = Error{Err: "resource-constraint"}

	// RestrictedXML may be sent when the entity has sent a comment, processing
	// instruction, DTD subset, or XML entity reference.
	RestrictedXML = Error{Err: "restricted-xml"}

	// SystemShutdown may be sent when the server is being shut down.
	SystemShutdown = Error{Err: "system-shutdown"}

	// UndefinedCondition is used together with an application-specific
	// condition.
	UndefinedCondition = Error{Err: "undefined-condition"}

	// UnsupportedEncoding may be sent when the stream is not UTF-8.
	UnsupportedEncoding = Error{Err: "unsupported-encoding"}

	// UnsupportedFeature may be sent when a mandatory-to-negotiate feature is
	// not supported by the initiating entity.
	UnsupportedFeature = Error{Err: "unsupported-feature"}

	// UnsupportedStanzaType may be sent when a first-level child of the stream
	// is not understood.
	UnsupportedStanzaType = Error{Err: "unsupported-stanza-type"}

	// UnsupportedVersion may be sent when the 'version' attribute of the
	// stream header is not supported.
	UnsupportedVersion = Error{Err: "unsupported-version"}
)

// A Error represents an unrecoverable stream-level error.
// It may carry human readable text and an application-specific condition.
type Error struct {
	Err  string
	Text string

	// App is the name of the application-specific condition element, if any.
	App xml.Name

	payload xml.TokenReader
}

// WithApp returns a copy of the error that carries the given
// application-specific condition.
// The payload is consumed the first time the error is encoded.
func (s Error) WithApp(start xml.StartElement, payload xml.TokenReader) Error {
	s.App = start.Name
	s.payload = xmlstream.Wrap(payload, start)
	return s
}

// WithText returns a copy of the error with descriptive text.
func (s Error) WithText(text string) Error {
	s.Text = text
	return s
}

// Error satisfies the builtin error interface and returns the name of the
// condition. For instance, given the error:
//
//	<stream:error>
//	  <restricted-xml xmlns="urn:ietf:params:xml:ns:xmpp-streams"/>
//	</stream:error>
//
// Error() would return "restricted-xml".
// If text is present it is appended after a colon.
func (s Error) Error() string {
	if s.Text != "" {
		return s.Err + ": " + s.Text
	}
	return s.Err
}

// Is reports whether target is a stream error with the same condition.
func (s Error) Is(target error) bool {
	switch t := target.(type) {
	case Error:
		return t.Err == s.Err
	case *Error:
		return t != nil && t.Err == s.Err
	}
	return false
}

// UnmarshalXML satisfies the xml package's Unmarshaler interface and allows
// stream errors to be correctly unmarshaled from XML.
func (s *Error) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	se := struct {
		Conditions []struct {
			XMLName xml.Name
		} `xml:",any"`
		Text string `xml:"urn:ietf:params:xml:ns:xmpp-streams text"`
	}{}
	if err := d.DecodeElement(&se, &start); err != nil {
		return err
	}
	for _, c := range se.Conditions {
		switch {
		case c.XMLName.Space == ErrorNS && s.Err == "":
			s.Err = c.XMLName.Local
		case c.XMLName.Space != ErrorNS && s.App.Local == "":
			s.App = c.XMLName
		}
	}
	s.Text = se.Text
	return nil
}

// MarshalXML satisfies the xml package's Marshaler interface and allows
// stream errors to be correctly marshaled back into XML.
func (s Error) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	if _, err := xmlstream.Copy(e, s.TokenReader()); err != nil {
		return err
	}
	return e.Flush()
}

// TokenReader returns a new xml.TokenReader that returns an encoding of the
// error.
func (s Error) TokenReader() xml.TokenReader {
	inner := []xml.TokenReader{
		xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ErrorNS, Local: s.Err}}),
	}
	if s.Text != "" {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(s.Text)),
			xml.StartElement{Name: xml.Name{Space: ErrorNS, Local: "text"}},
		))
	}
	if s.payload != nil {
		inner = append(inner, s.payload)
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{Name: xml.Name{Space: NS, Local: "error"}},
	)
}
