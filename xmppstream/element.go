// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream

import (
	"encoding/base64"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"mellium.im/xmlstream"

	"mellium.im/stanzastream/internal/attr"
	"mellium.im/stanzastream/internal/ns"
	"mellium.im/stanzastream/internal/saslerr"
	"mellium.im/stanzastream/stanza"
	"mellium.im/stanzastream/stream"
)

// Element is a top level element read from or written to a stream.
// The set of elements is closed: Stanza, SASL, StartTLS, Handshake,
// StreamError, SM and Unrecognized.
type Element interface {
	TokenReader() xml.TokenReader
	element()
}

// Codec decodes the element that begins with start.
// Decode must consume the entire element.
type Codec[T any] interface {
	Decode(d *xml.Decoder, start xml.StartElement) (T, error)
}

// CodecFunc adapts a function to the Codec interface.
type CodecFunc[T any] func(d *xml.Decoder, start xml.StartElement) (T, error)

// Decode calls f(d, start).
func (f CodecFunc[T]) Decode(d *xml.Decoder, start xml.StartElement) (T, error) {
	return f(d, start)
}

var (
	// ElementCodec decodes the elements understood by this module.
	ElementCodec Codec[Element] = CodecFunc[Element](DecodeElement)

	// RawCodec captures every element without interpreting it.
	RawCodec Codec[Raw] = CodecFunc[Raw](DecodeRaw)
)

// Stanza is a message, presence or IQ.
type Stanza struct {
	stanza.Stanza
}

func (Stanza) element() {}

// SASLKind is the name of a SASL negotiation element.
type SASLKind uint8

// A list of SASL negotiation elements.
const (
	SASLAuth SASLKind = iota
	SASLChallenge
	SASLResponse
	SASLSuccess
	SASLFailure
	SASLAbort
)

var saslNames = [...]string{"auth", "challenge", "response", "success", "failure", "abort"}

func (k SASLKind) String() string {
	if int(k) < len(saslNames) {
		return saslNames[k]
	}
	return "SASLKind(" + strconv.Itoa(int(k)) + ")"
}

// SASL is a SASL negotiation element.
//
// A nil Data is encoded as an empty element.
// An empty but non-nil Data on auth or success is encoded as "=", which is
// how RFC 6120 represents a zero length payload.
type SASL struct {
	Kind      SASLKind
	Mechanism string
	Data      []byte
	Failure   saslerr.Failure
}

func (SASL) element() {}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (s SASL) TokenReader() xml.TokenReader {
	if s.Kind == SASLFailure {
		return s.Failure.TokenReader()
	}
	start := xml.StartElement{Name: xml.Name{Space: ns.SASL, Local: s.Kind.String()}}
	if s.Kind == SASLAuth && s.Mechanism != "" {
		start.Attr = []xml.Attr{{Name: xml.Name{Local: "mechanism"}, Value: s.Mechanism}}
	}
	var inner xml.TokenReader
	switch {
	case s.Data == nil:
	case len(s.Data) == 0:
		if s.Kind == SASLAuth || s.Kind == SASLSuccess {
			inner = xmlstream.Token(xml.CharData("="))
		}
	default:
		inner = xmlstream.Token(xml.CharData(base64.StdEncoding.EncodeToString(s.Data)))
	}
	return xmlstream.Wrap(inner, start)
}

// StartTLSKind is the name of a STARTTLS negotiation element.
type StartTLSKind uint8

// A list of STARTTLS negotiation elements.
const (
	StartTLSRequest StartTLSKind = iota
	StartTLSProceed
	StartTLSFailure
)

// StartTLS is a STARTTLS negotiation element.
type StartTLS struct {
	Kind StartTLSKind
}

func (StartTLS) element() {}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (s StartTLS) TokenReader() xml.TokenReader {
	local := "starttls"
	switch s.Kind {
	case StartTLSProceed:
		local = "proceed"
	case StartTLSFailure:
		local = "failure"
	}
	return xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ns.StartTLS, Local: local}})
}

// Handshake is the XEP-0114 component handshake.
// The server echoes it back empty on success.
type Handshake struct {
	Digest string
}

func (Handshake) element() {}

// TokenReader satisfies the xmlstream.Marshaler interface.
// The element inherits the stream's default namespace.
func (h Handshake) TokenReader() xml.TokenReader {
	var inner xml.TokenReader
	if h.Digest != "" {
		inner = xmlstream.Token(xml.CharData(h.Digest))
	}
	return xmlstream.Wrap(inner, xml.StartElement{Name: xml.Name{Local: "handshake"}})
}

// StreamError is a <stream:error/> element.
type StreamError struct {
	stream.Error
}

func (StreamError) element() {}

// SMKind is the name of a stream management element.
type SMKind uint8

// A list of stream management elements.
const (
	SMEnable SMKind = iota
	SMEnabled
	SMResume
	SMResumed
	SMFailed
	SMRequest
	SMAnswer
)

var smNames = [...]string{"enable", "enabled", "resume", "resumed", "failed", "r", "a"}

func (k SMKind) String() string {
	if int(k) < len(smNames) {
		return smNames[k]
	}
	return "SMKind(" + strconv.Itoa(int(k)) + ")"
}

// SM is a XEP-0198 stream management element.
// Only the fields that are meaningful for Kind are encoded.
type SM struct {
	Kind      SMKind
	H         uint32
	HasH      bool
	Resume    bool
	Max       uint32
	ID        string
	PrevID    string
	Location  string
	Condition string
}

func (SM) element() {}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (s SM) TokenReader() xml.TokenReader {
	var attrs []xml.Attr
	add := func(local, value string) {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: local}, Value: value})
	}
	h := strconv.FormatUint(uint64(s.H), 10)
	switch s.Kind {
	case SMEnable:
		if s.Resume {
			add("resume", "true")
		}
		if s.Max > 0 {
			add("max", strconv.FormatUint(uint64(s.Max), 10))
		}
	case SMEnabled:
		if s.ID != "" {
			add("id", s.ID)
		}
		if s.Resume {
			add("resume", "true")
		}
		if s.Max > 0 {
			add("max", strconv.FormatUint(uint64(s.Max), 10))
		}
		if s.Location != "" {
			add("location", s.Location)
		}
	case SMResume, SMResumed:
		add("h", h)
		add("previd", s.PrevID)
	case SMFailed:
		if s.HasH {
			add("h", h)
		}
	case SMAnswer:
		add("h", h)
	}
	var inner xml.TokenReader
	if s.Kind == SMFailed && s.Condition != "" {
		inner = xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ns.Stanza, Local: s.Condition}})
	}
	return xmlstream.Wrap(inner, xml.StartElement{
		Name: xml.Name{Space: ns.SM, Local: s.Kind.String()},
		Attr: attrs,
	})
}

// Raw is an element captured without interpretation.
type Raw struct {
	Start xml.StartElement
	Inner []byte
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (r Raw) TokenReader() xml.TokenReader {
	start := r.Start.Copy()
	attrs := start.Attr[:0]
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		attrs = append(attrs, a)
	}
	start.Attr = attrs
	return xmlstream.Wrap(stanza.Payload(r.Inner), start)
}

// Unrecognized is any element that is not otherwise understood.
type Unrecognized struct {
	Raw
}

func (Unrecognized) element() {}

// DecodeRaw captures the element that begins with start.
func DecodeRaw(d *xml.Decoder, start xml.StartElement) (Raw, error) {
	var v struct {
		Inner []byte `xml:",innerxml"`
	}
	if err := d.DecodeElement(&v, &start); err != nil {
		return Raw{}, err
	}
	return Raw{Start: start.Copy(), Inner: v.Inner}, nil
}

// DecodeElement decodes the element that begins with start into one of the
// Element variants.
func DecodeElement(d *xml.Decoder, start xml.StartElement) (Element, error) {
	switch {
	case stanza.Is(start.Name):
		s, err := stanza.Decode(d, start)
		if err != nil {
			return nil, err
		}
		return Stanza{Stanza: s}, nil
	case start.Name.Space == ns.SASL:
		return decodeSASL(d, start)
	case start.Name.Space == ns.StartTLS:
		return decodeStartTLS(d, start)
	case start.Name.Space == ns.SM:
		return decodeSM(d, start)
	case start.Name == xml.Name{Space: stream.NS, Local: "error"}:
		se := stream.Error{}
		if err := d.DecodeElement(&se, &start); err != nil {
			return nil, err
		}
		return StreamError{Error: se}, nil
	case start.Name == xml.Name{Space: ns.Component, Local: "handshake"}:
		var body struct {
			Data string `xml:",chardata"`
		}
		if err := d.DecodeElement(&body, &start); err != nil {
			return nil, err
		}
		return Handshake{Digest: strings.TrimSpace(body.Data)}, nil
	}
	return decodeUnrecognized(d, start)
}

func decodeUnrecognized(d *xml.Decoder, start xml.StartElement) (Element, error) {
	raw, err := DecodeRaw(d, start)
	if err != nil {
		return nil, err
	}
	return Unrecognized{Raw: raw}, nil
}

func decodeSASL(d *xml.Decoder, start xml.StartElement) (Element, error) {
	if start.Name.Local == "failure" {
		f := saslerr.Failure{}
		if err := d.DecodeElement(&f, &start); err != nil {
			return nil, err
		}
		return SASL{Kind: SASLFailure, Failure: f}, nil
	}
	kind := -1
	for i, name := range saslNames {
		if name == start.Name.Local {
			kind = i
			break
		}
	}
	if kind < 0 {
		return decodeUnrecognized(d, start)
	}
	var body struct {
		Data string `xml:",chardata"`
	}
	if err := d.DecodeElement(&body, &start); err != nil {
		return nil, err
	}
	el := SASL{Kind: SASLKind(kind)}
	if el.Kind == SASLAuth {
		_, el.Mechanism = attr.Get(start.Attr, "mechanism")
	}
	switch data := strings.TrimSpace(body.Data); data {
	case "":
	case "=":
		el.Data = []byte{}
	default:
		var err error
		el.Data, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding sasl %s payload", el.Kind)
		}
	}
	return el, nil
}

func decodeStartTLS(d *xml.Decoder, start xml.StartElement) (Element, error) {
	var el StartTLS
	switch start.Name.Local {
	case "starttls":
		el.Kind = StartTLSRequest
	case "proceed":
		el.Kind = StartTLSProceed
	case "failure":
		el.Kind = StartTLSFailure
	default:
		return decodeUnrecognized(d, start)
	}
	return el, d.Skip()
}

func decodeSM(d *xml.Decoder, start xml.StartElement) (Element, error) {
	kind := -1
	for i, name := range smNames {
		if name == start.Name.Local {
			kind = i
			break
		}
	}
	if kind < 0 {
		return decodeUnrecognized(d, start)
	}
	el := SM{Kind: SMKind(kind)}
	var err error
	el.H, el.HasH, err = attr.Uint32(start.Attr, "h")
	if err != nil {
		return nil, errors.Wrapf(err, "decoding sm %s counter", el.Kind)
	}
	el.Max, _, err = attr.Uint32(start.Attr, "max")
	if err != nil {
		return nil, errors.Wrapf(err, "decoding sm %s max", el.Kind)
	}
	el.Resume = attr.Bool(start.Attr, "resume")
	_, el.ID = attr.Get(start.Attr, "id")
	_, el.PrevID = attr.Get(start.Attr, "previd")
	_, el.Location = attr.Get(start.Attr, "location")

	var body struct {
		Conditions []struct {
			XMLName xml.Name
		} `xml:",any"`
	}
	if err := d.DecodeElement(&body, &start); err != nil {
		return nil, err
	}
	for _, c := range body.Conditions {
		if c.XMLName.Space == ns.Stanza {
			el.Condition = c.XMLName.Local
			break
		}
	}
	return el, nil
}
