// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream_test

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmlstream"

	"mellium.im/stanzastream/stream"
)

var (
	_ error           = stream.Error{}
	_ xml.Marshaler   = stream.Error{}
	_ xml.Unmarshaler = (*stream.Error)(nil)
)

var marshalTests = [...]struct {
	err stream.Error
	out string
}{
	0: {
		err: stream.RestrictedXML,
		out: `<error xmlns="http://etherx.jabber.org/streams"><restricted-xml xmlns="urn:ietf:params:xml:ns:xmpp-streams"></restricted-xml></error>`,
	},
	1: {
		err: stream.NotWellFormed.WithText("oops"),
		out: `<error xmlns="http://etherx.jabber.org/streams"><not-well-formed xmlns="urn:ietf:params:xml:ns:xmpp-streams"></not-well-formed><text xmlns="urn:ietf:params:xml:ns:xmpp-streams">oops</text></error>`,
	},
	2: {
		err: stream.UndefinedCondition.WithApp(xml.StartElement{
			Name: xml.Name{Space: "urn:xmpp:sm:3", Local: "handled-count-too-high"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "h"}, Value: "10"}},
		}, nil),
		out: `<error xmlns="http://etherx.jabber.org/streams"><undefined-condition xmlns="urn:ietf:params:xml:ns:xmpp-streams"></undefined-condition><handled-count-too-high xmlns="urn:xmpp:sm:3" h="10"></handled-count-too-high></error>`,
	},
}

func TestMarshal(t *testing.T) {
	for i, tc := range marshalTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			var buf bytes.Buffer
			e := xml.NewEncoder(&buf)
			_, err := xmlstream.Copy(e, tc.err.TokenReader())
			require.NoError(t, err)
			require.NoError(t, e.Flush())
			assert.Equal(t, tc.out, buf.String())
		})
	}
}

var unmarshalTests = [...]struct {
	in   string
	err  string
	text string
	app  xml.Name
}{
	0: {
		in:  `<stream:error xmlns:stream="http://etherx.jabber.org/streams"><restricted-xml xmlns="urn:ietf:params:xml:ns:xmpp-streams"/></stream:error>`,
		err: "restricted-xml",
	},
	1: {
		in:   `<stream:error xmlns:stream="http://etherx.jabber.org/streams"><conflict xmlns="urn:ietf:params:xml:ns:xmpp-streams"/><text xmlns="urn:ietf:params:xml:ns:xmpp-streams">Replaced by new connection</text></stream:error>`,
		err:  "conflict",
		text: "Replaced by new connection",
	},
	2: {
		in:  `<stream:error xmlns:stream="http://etherx.jabber.org/streams"><undefined-condition xmlns="urn:ietf:params:xml:ns:xmpp-streams"/><handled-count-too-high xmlns="urn:xmpp:sm:3" h="10" send-count="8"/></stream:error>`,
		err: "undefined-condition",
		app: xml.Name{Space: "urn:xmpp:sm:3", Local: "handled-count-too-high"},
	},
}

func TestUnmarshal(t *testing.T) {
	for i, tc := range unmarshalTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			var se stream.Error
			require.NoError(t, xml.Unmarshal([]byte(tc.in), &se))
			assert.Equal(t, tc.err, se.Err)
			assert.Equal(t, tc.text, se.Text)
			assert.Equal(t, tc.app, se.App)
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := error(stream.Conflict.WithText("replaced"))
	assert.True(t, errors.Is(err, stream.Conflict))
	assert.False(t, errors.Is(err, stream.BadFormat))
	assert.Equal(t, "conflict: replaced", err.Error())
	assert.Equal(t, "bad-format", stream.BadFormat.Error())
}
