// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream

import (
	"encoding/xml"
	"fmt"
	"strings"

	"mellium.im/stanzastream/internal/decl"
	"mellium.im/stanzastream/internal/ns"
	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/stream"
)

const footer = `</stream:stream>`

// Header is the stream header that we send.
type Header struct {
	To   *jid.JID
	From *jid.JID
	ID   string
	Lang string

	// Version is omitted from the header if it is the zero value.
	// Component streams are usually opened without a version.
	Version stream.Version

	// NS is the content namespace of the stream.
	// If empty, jabber:client is used.
	NS string
}

func (h Header) contentNS() string {
	if h.NS == "" {
		return ns.Client
	}
	return h.NS
}

// String returns the serialized header, including the XML declaration.
func (h Header) String() string {
	var b strings.Builder
	b.WriteString(decl.XMLHeader)
	b.WriteString("<stream:stream")
	attr := func(name, value string) {
		b.WriteString(" " + name + "='")
		// Writes to a strings.Builder never fail.
		_ = xml.EscapeText(&b, []byte(value))
		b.WriteString("'")
	}
	if h.ID != "" {
		attr("id", h.ID)
	}
	if h.To != nil {
		attr("to", h.To.String())
	}
	if h.From != nil {
		attr("from", h.From.String())
	}
	if h.Version != (stream.Version{}) {
		attr("version", h.Version.String())
	}
	if h.Lang != "" {
		attr("xml:lang", h.Lang)
	}
	attr("xmlns", h.contentNS())
	attr("xmlns:stream", stream.NS)
	b.WriteString(">")
	return b.String()
}

// headerError is a header validation failure together with the stream error
// that should be reported to the peer.
type headerError struct {
	kind ProtocolKind
	cond stream.Error
}

func (e *headerError) Error() string {
	return e.protocolError().Error()
}

func (e *headerError) protocolError() *ProtocolError {
	return &ProtocolError{Kind: e.kind, Err: e.cond}
}

// readHeader reads the peer's stream header.
// A *headerError is returned if the header was read but is not acceptable.
func (s *session) readHeader(contentNS string) (stream.Info, error) {
	info := stream.Info{}
	tok, err := decl.Skip(s.d).Token()
	if err != nil {
		return info, s.classify(err)
	}
	switch t := tok.(type) {
	case xml.StartElement:
		if err := info.FromStartElement(t, contentNS); err != nil {
			kind := InvalidStreamStart
			cond, _ := err.(stream.Error)
			if cond.Is(stream.InvalidNamespace) {
				kind = NoStreamNamespace
			}
			return info, &headerError{kind: kind, cond: cond}
		}
		return info, nil
	case xml.ProcInst, xml.Comment, xml.Directive:
		return info, &headerError{kind: InvalidStreamStart, cond: stream.RestrictedXML}
	}
	return info, &headerError{
		kind: InvalidStreamStart,
		cond: stream.NotWellFormed.WithText(fmt.Sprintf("expected stream header, got %T", tok)),
	}
}

// checkVersion compares the peer's version with the one we announced.
func checkVersion(sent stream.Version, info stream.Info) *headerError {
	if sent == (stream.Version{}) {
		return nil
	}
	if info.Version.Major != sent.Major {
		return &headerError{kind: InvalidStreamStart, cond: stream.UnsupportedVersion}
	}
	return nil
}
