// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package attr_test

import (
	"encoding/xml"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"mellium.im/stanzastream/internal/attr"
)

var attrTests = [...]struct {
	attr  []xml.Attr
	local string
	out   string
	idx   int
}{
	0: {idx: -1},
	1: {idx: -1, local: "test"},
	2: {idx: -1, attr: []xml.Attr{}, local: "test"},
	3: {
		attr:  []xml.Attr{{Name: xml.Name{Local: "test"}, Value: "test"}},
		local: "test",
		out:   "test",
	},
	4: {
		attr: []xml.Attr{
			{Name: xml.Name{Local: "test"}, Value: "test0"},
			{Name: xml.Name{Local: "test"}, Value: "test1"},
		},
		local: "test",
		out:   "test0",
	},
	5: {
		attr: []xml.Attr{
			{Name: xml.Name{Local: "a"}, Value: "test0"},
			{Name: xml.Name{Local: "b"}, Value: "test1"},
		},
		local: "b",
		out:   "test1",
		idx:   1,
	},
}

func TestGet(t *testing.T) {
	for i, tc := range attrTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			idx, out := attr.Get(tc.attr, tc.local)
			assert.Equal(t, tc.out, out)
			assert.Equal(t, tc.idx, idx)
		})
	}
}

var uint32Tests = [...]struct {
	value string
	set   bool
	out   uint32
	err   bool
}{
	0: {},
	1: {value: "0", set: true},
	2: {value: "4294967295", set: true, out: 4294967295},
	3: {value: "4294967296", set: true, err: true},
	4: {value: "-1", set: true, err: true},
	5: {value: "12", set: true, out: 12},
}

func TestUint32(t *testing.T) {
	for i, tc := range uint32Tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			var attrs []xml.Attr
			if tc.set {
				attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "h"}, Value: tc.value})
			}
			v, ok, err := attr.Uint32(attrs, "h")
			if tc.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.set, ok)
			assert.Equal(t, tc.out, v)
		})
	}
}

func TestBool(t *testing.T) {
	for _, v := range []string{"true", "1"} {
		assert.True(t, attr.Bool([]xml.Attr{{Name: xml.Name{Local: "resume"}, Value: v}}, "resume"), v)
	}
	for _, v := range []string{"false", "0", "yes", ""} {
		assert.False(t, attr.Bool([]xml.Attr{{Name: xml.Name{Local: "resume"}, Value: v}}, "resume"), v)
	}
	assert.False(t, attr.Bool(nil, "resume"))
}
