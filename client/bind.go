// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"bytes"
	"context"
	"encoding/xml"

	"github.com/pkg/errors"

	"mellium.im/stanzastream/internal/ns"
	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/stanza"
	"mellium.im/stanzastream/xmppstream"
)

// BindID is the id of the resource binding IQ.
const BindID = "resource-binding"

// BindRequest returns the IQ that asks the server to bind resource.
// If resource is empty the server picks one.
func BindRequest(resource string) *stanza.IQ {
	var payload bytes.Buffer
	payload.WriteString(`<bind xmlns='` + ns.Bind + `'>`)
	if resource != "" {
		payload.WriteString("<resource>")
		// Writes to a bytes.Buffer never fail.
		_ = xml.EscapeText(&payload, []byte(resource))
		payload.WriteString("</resource>")
	}
	payload.WriteString("</bind>")
	return &stanza.IQ{ID: BindID, Type: stanza.SetIQ, Payload: payload.Bytes()}
}

// Bind binds a resource on an authenticated stream and returns the full JID
// assigned by the server.
// Stanzas other than the reply are discarded.
func Bind(ctx context.Context, s *xmppstream.Stream[xmppstream.Element], resource string) (*jid.JID, error) {
	if err := s.Send(ctx, BindRequest(resource)); err != nil {
		return nil, err
	}
	el, err := xmppstream.Await(ctx, s, func(el xmppstream.Element) (bool, error) {
		st, ok := el.(xmppstream.Stanza)
		if !ok {
			return false, nil
		}
		iq, ok := st.Stanza.(*stanza.IQ)
		return ok && iq.ID == BindID, nil
	})
	if err != nil {
		return nil, err
	}
	j, err := ParseBindResponse(el.(xmppstream.Stanza).Stanza.(*stanza.IQ))
	if err != nil {
		return nil, err
	}
	log := s.Logger()
	log.Info().Stringer("jid", j).Msg("bound resource")
	return j, nil
}

// ParseBindResponse extracts the bound JID from the server's reply.
func ParseBindResponse(iq *stanza.IQ) (*jid.JID, error) {
	if iq.Type != stanza.ResultIQ {
		return nil, &xmppstream.ProtocolError{
			Kind: xmppstream.InvalidBindResponse,
			Err:  errors.Errorf("bind returned type %q", iq.Type),
		}
	}
	var resp struct {
		XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
		JID     string   `xml:"jid"`
	}
	if err := xml.Unmarshal(iq.Payload, &resp); err != nil {
		return nil, &xmppstream.ProtocolError{Kind: xmppstream.InvalidBindResponse, Err: err}
	}
	j, err := jid.Parse(resp.JID)
	if err != nil {
		return nil, &xmppstream.ProtocolError{Kind: xmppstream.InvalidBindResponse, Err: err}
	}
	return j, nil
}
