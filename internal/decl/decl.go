// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package decl handles the prolog that may precede a stream header.
package decl // import "mellium.im/stanzastream/internal/decl"

import (
	"bytes"
	"encoding/xml"
)

// XMLHeader is an XML declaration like xml.Header but without the trailing
// newline.
const XMLHeader = `<?xml version="1.0" encoding="UTF-8"?>`

type skipper struct {
	r    xml.TokenReader
	done bool
}

func (s *skipper) Token() (xml.Token, error) {
	for {
		tok, err := s.r.Token()
		if s.done {
			return tok, err
		}
		if skippable(tok) {
			if err != nil {
				return nil, err
			}
			continue
		}
		if tok != nil {
			s.done = true
		}
		return tok, err
	}
}

func skippable(tok xml.Token) bool {
	switch t := tok.(type) {
	case xml.ProcInst:
		return t.Target == "xml"
	case xml.CharData:
		return len(bytes.TrimSpace(t)) == 0
	}
	return false
}

// Skip wraps r and drops any XML declaration and whitespace that come before
// the first other token.
func Skip(r xml.TokenReader) xml.TokenReader {
	return &skipper{r: r}
}
