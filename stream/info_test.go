// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream_test

import (
	"encoding/xml"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/stanzastream/stream"
)

var infoTests = [...]struct {
	in        string
	contentNS string
	err       error
	id        string
	from      string
}{
	0: {
		in:        `<stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" id="abc" from="example.net" version="1.0">`,
		contentNS: "jabber:client",
		id:        "abc",
		from:      "example.net",
	},
	1: {
		in:        `<stream:stream xmlns="jabber:server" xmlns:stream="http://etherx.jabber.org/streams" version="1.0">`,
		contentNS: "jabber:client",
		err:       stream.InvalidNamespace,
	},
	2: {
		in:  `<stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" version="1.0" from="@bad">`,
		err: stream.ImproperAddressing,
	},
	3: {
		in:  `<stream xmlns="jabber:client" version="1.0">`,
		err: stream.InvalidNamespace,
	},
	4: {
		in:  `<stream:features xmlns:stream="http://etherx.jabber.org/streams">`,
		err: stream.BadFormat,
	},
	5: {
		in:  `<stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" version="one">`,
		err: stream.BadFormat,
	},
}

func TestFromStartElement(t *testing.T) {
	for i, tc := range infoTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			tok, err := xml.NewDecoder(strings.NewReader(tc.in)).Token()
			require.NoError(t, err)
			info := stream.Info{}
			err = info.FromStartElement(tok.(xml.StartElement), tc.contentNS)
			if tc.err != nil {
				assert.Equal(t, tc.err, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.id, info.ID)
			assert.Equal(t, tc.from, info.From.String())
			assert.Equal(t, stream.DefaultVersion, info.Version)
		})
	}
}

func TestParseVersion(t *testing.T) {
	for i, tc := range [...]struct {
		in  string
		out stream.Version
		err bool
	}{
		0: {in: "1.0", out: stream.Version{Major: 1}},
		1: {in: "0.9", out: stream.Version{Minor: 9}},
		2: {in: "1", err: true},
		3: {in: "1.0.0", err: true},
		4: {in: "a.b", err: true},
		5: {in: "256.0", err: true},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			v, err := stream.ParseVersion(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.out, v)
			assert.Equal(t, tc.in, v.String())
		})
	}
}
