// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package attr contains helpers for working with XML attributes.
package attr // import "mellium.im/stanzastream/internal/attr"

import (
	"encoding/xml"
	"strconv"
)

// Get returns the index and value of the first attribute with the provided
// local name from a list of attributes.
// If no such attribute exists, the index is -1.
func Get(attr []xml.Attr, local string) (int, string) {
	for i, a := range attr {
		if a.Name.Local == local {
			return i, a.Value
		}
	}
	return -1, ""
}

// Uint32 parses the named attribute as an unsigned 32-bit counter.
// ok is false if the attribute is missing.
func Uint32(attr []xml.Attr, local string) (v uint32, ok bool, err error) {
	idx, s := Get(attr, local)
	if idx == -1 {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, true, err
	}
	return uint32(n), true, nil
}

// Bool parses the named attribute as an XML schema boolean ("true", "1",
// "false", "0"). Missing or invalid attributes are false.
func Bool(attr []xml.Attr, local string) bool {
	_, s := Get(attr, local)
	return s == "true" || s == "1"
}
