// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ping implements XEP-0199: XMPP Ping.
package ping // import "mellium.im/stanzastream/ping"

import (
	"encoding/xml"
	"strings"

	"mellium.im/stanzastream/internal/ns"
	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/stanza"
)

// NS is the XML namespace used by XMPP pings. It is provided as a convenience.
const NS = ns.Ping

var payload = []byte(`<ping xmlns='` + NS + `'/>`)

// Request returns a ping with the given id.
// If to is nil the ping is answered by the server.
func Request(id string, to *jid.JID) *stanza.IQ {
	return &stanza.IQ{
		ID:      id,
		To:      to,
		Type:    stanza.GetIQ,
		Payload: payload,
	}
}

// IsRequest reports whether iq is a ping.
func IsRequest(iq *stanza.IQ) bool {
	if iq.Type != stanza.GetIQ {
		return false
	}
	var v struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(iq.Payload, &v); err != nil {
		return false
	}
	return v.XMLName == xml.Name{Space: NS, Local: "ping"}
}

// Reply returns the result that answers the ping iq.
func Reply(iq *stanza.IQ) *stanza.IQ {
	return &stanza.IQ{
		ID:   iq.ID,
		To:   iq.From,
		From: iq.To,
		Type: stanza.ResultIQ,
	}
}

// IsReply reports whether st answers a ping whose id starts with prefix.
// Errors count as answers since they prove the peer is alive.
func IsReply(st stanza.Stanza, prefix string) bool {
	iq, ok := st.(*stanza.IQ)
	if !ok || !strings.HasPrefix(iq.ID, prefix) {
		return false
	}
	return iq.Type == stanza.ResultIQ || iq.Type == stanza.ErrorIQ
}
