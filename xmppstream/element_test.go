// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream_test

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmlstream"

	"mellium.im/stanzastream/internal/saslerr"
	"mellium.im/stanzastream/stanza"
	"mellium.im/stanzastream/xmppstream"
)

func encode(t *testing.T, el xmlstream.Marshaler) string {
	t.Helper()
	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)
	_, err := xmlstream.Copy(e, el.TokenReader())
	require.NoError(t, err)
	require.NoError(t, e.Flush())
	return buf.String()
}

func decode(t *testing.T, in string) xmppstream.Element {
	t.Helper()
	d := xml.NewDecoder(strings.NewReader(in))
	tok, err := d.Token()
	require.NoError(t, err)
	start, ok := tok.(xml.StartElement)
	require.True(t, ok, "expected start element, got %T", tok)
	el, err := xmppstream.DecodeElement(d, start)
	require.NoError(t, err)
	return el
}

var encodeTests = [...]struct {
	el  xmppstream.Element
	out string
}{
	0: {
		el:  xmppstream.SASL{Kind: xmppstream.SASLAuth, Mechanism: "PLAIN", Data: []byte{}},
		out: `<auth xmlns="urn:ietf:params:xml:ns:xmpp-sasl" mechanism="PLAIN">=</auth>`,
	},
	1: {
		el:  xmppstream.SASL{Kind: xmppstream.SASLAuth, Mechanism: "SCRAM-SHA-1"},
		out: `<auth xmlns="urn:ietf:params:xml:ns:xmpp-sasl" mechanism="SCRAM-SHA-1"></auth>`,
	},
	2: {
		el:  xmppstream.SASL{Kind: xmppstream.SASLResponse, Data: []byte("hi")},
		out: `<response xmlns="urn:ietf:params:xml:ns:xmpp-sasl">aGk=</response>`,
	},
	3: {
		el:  xmppstream.StartTLS{Kind: xmppstream.StartTLSRequest},
		out: `<starttls xmlns="urn:ietf:params:xml:ns:xmpp-tls"></starttls>`,
	},
	4: {
		el:  xmppstream.Handshake{Digest: "abc"},
		out: `<handshake>abc</handshake>`,
	},
	5: {
		el:  xmppstream.Handshake{},
		out: `<handshake></handshake>`,
	},
	6: {
		el:  xmppstream.SM{Kind: xmppstream.SMEnable, Resume: true},
		out: `<enable xmlns="urn:xmpp:sm:3" resume="true"></enable>`,
	},
	7: {
		el:  xmppstream.SM{Kind: xmppstream.SMResume, H: 4294967295, PrevID: "q"},
		out: `<resume xmlns="urn:xmpp:sm:3" h="4294967295" previd="q"></resume>`,
	},
	8: {
		el:  xmppstream.SM{Kind: xmppstream.SMRequest},
		out: `<r xmlns="urn:xmpp:sm:3"></r>`,
	},
	9: {
		el:  xmppstream.SM{Kind: xmppstream.SMAnswer, H: 0},
		out: `<a xmlns="urn:xmpp:sm:3" h="0"></a>`,
	},
	10: {
		el:  xmppstream.SM{Kind: xmppstream.SMFailed, H: 2, HasH: true, Condition: "item-not-found"},
		out: `<failed xmlns="urn:xmpp:sm:3" h="2"><item-not-found xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"></item-not-found></failed>`,
	},
}

func TestEncodeElement(t *testing.T) {
	for i, tc := range encodeTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			assert.Equal(t, tc.out, encode(t, tc.el))
		})
	}
}

func TestDecodeSASL(t *testing.T) {
	el := decode(t, `<auth xmlns="urn:ietf:params:xml:ns:xmpp-sasl" mechanism="PLAIN">=</auth>`)
	sasl, ok := el.(xmppstream.SASL)
	require.True(t, ok, "got %T", el)
	assert.Equal(t, xmppstream.SASLAuth, sasl.Kind)
	assert.Equal(t, "PLAIN", sasl.Mechanism)
	assert.NotNil(t, sasl.Data)
	assert.Empty(t, sasl.Data)

	el = decode(t, `<challenge xmlns="urn:ietf:params:xml:ns:xmpp-sasl">aGk=</challenge>`)
	assert.Equal(t, xmppstream.SASL{Kind: xmppstream.SASLChallenge, Data: []byte("hi")}, el)

	el = decode(t, `<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`)
	assert.Equal(t, xmppstream.SASL{Kind: xmppstream.SASLSuccess}, el)

	el = decode(t, `<failure xmlns="urn:ietf:params:xml:ns:xmpp-sasl"><not-authorized/></failure>`)
	sasl, ok = el.(xmppstream.SASL)
	require.True(t, ok, "got %T", el)
	assert.Equal(t, xmppstream.SASLFailure, sasl.Kind)
	assert.Equal(t, saslerr.NotAuthorized, sasl.Failure.Condition)
}

func TestDecodeSM(t *testing.T) {
	el := decode(t, `<enabled xmlns="urn:xmpp:sm:3" id="some-long-sm-id" resume="true" location="[2001:41D0:1:A49b::1]:9222"/>`)
	assert.Equal(t, xmppstream.SM{
		Kind:     xmppstream.SMEnabled,
		ID:       "some-long-sm-id",
		Resume:   true,
		Location: "[2001:41D0:1:A49b::1]:9222",
	}, el)

	el = decode(t, `<resumed xmlns="urn:xmpp:sm:3" h="7" previd="some-long-sm-id"/>`)
	assert.Equal(t, xmppstream.SM{Kind: xmppstream.SMResumed, H: 7, HasH: true, PrevID: "some-long-sm-id"}, el)

	el = decode(t, `<failed xmlns="urn:xmpp:sm:3"><item-not-found xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></failed>`)
	assert.Equal(t, xmppstream.SM{Kind: xmppstream.SMFailed, Condition: "item-not-found"}, el)

	d := xml.NewDecoder(strings.NewReader(`<a xmlns="urn:xmpp:sm:3" h="-1"/>`))
	tok, err := d.Token()
	require.NoError(t, err)
	_, err = xmppstream.DecodeElement(d, tok.(xml.StartElement))
	assert.Error(t, err)
}

func TestDecodeVariants(t *testing.T) {
	el := decode(t, `<message xmlns="jabber:client" id="1" type="chat"><body>hi</body></message>`)
	s, ok := el.(xmppstream.Stanza)
	require.True(t, ok, "got %T", el)
	msg, ok := s.Stanza.(*stanza.Message)
	require.True(t, ok, "got %T", s.Stanza)
	assert.Equal(t, "1", msg.ID)
	assert.Equal(t, stanza.ChatMessage, msg.Type)

	el = decode(t, `<proceed xmlns="urn:ietf:params:xml:ns:xmpp-tls"/>`)
	assert.Equal(t, xmppstream.StartTLS{Kind: xmppstream.StartTLSProceed}, el)

	el = decode(t, `<handshake xmlns="jabber:component:accept"/>`)
	assert.Equal(t, xmppstream.Handshake{}, el)

	el = decode(t, `<stream:error xmlns:stream="http://etherx.jabber.org/streams"><host-unknown xmlns="urn:ietf:params:xml:ns:xmpp-streams"/></stream:error>`)
	se, ok := el.(xmppstream.StreamError)
	require.True(t, ok, "got %T", el)
	assert.Equal(t, "host-unknown", se.Error.Err)

	el = decode(t, `<foo xmlns="urn:example"><bar/></foo>`)
	u, ok := el.(xmppstream.Unrecognized)
	require.True(t, ok, "got %T", el)
	assert.Equal(t, xml.Name{Space: "urn:example", Local: "foo"}, u.Start.Name)
	assert.Equal(t, `<foo xmlns="urn:example"><bar></bar></foo>`, encode(t, u))
}

func TestFeaturesRoundTrip(t *testing.T) {
	f := xmppstream.Features{
		StartTLS:         true,
		StartTLSRequired: true,
		Mechanisms:       []string{"SCRAM-SHA-1", "PLAIN"},
		Bind:             true,
		SM:               true,
		Other:            []xml.Name{{Space: "urn:xmpp:features:rosterver", Local: "ver"}},
	}
	out := encode(t, f)
	d := xml.NewDecoder(strings.NewReader(out))
	tok, err := d.Token()
	require.NoError(t, err)
	start := tok.(xml.StartElement)
	var got xmppstream.Features
	require.NoError(t, d.DecodeElement(&got, &start))
	assert.Equal(t, f, got)
	assert.True(t, got.Has(xml.Name{Space: "urn:xmpp:features:rosterver", Local: "ver"}))
	assert.False(t, got.Has(xml.Name{Space: "urn:example", Local: "nope"}))
}
