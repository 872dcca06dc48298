// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream_test

import (
	"io"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"mellium.im/stanzastream/internal/saslerr"
	"mellium.im/stanzastream/stream"
	"mellium.im/stanzastream/xmppstream"
)

var authErrorTests = [...]struct {
	err *xmppstream.AuthError
	msg string
}{
	0: {err: &xmppstream.AuthError{Kind: xmppstream.NoMechanism}, msg: "xmppstream: no usable mechanism"},
	1: {err: &xmppstream.AuthError{Kind: xmppstream.SASLEngine, Err: io.EOF}, msg: "xmppstream: sasl: EOF"},
	2: {err: &xmppstream.AuthError{Kind: xmppstream.Fail, Condition: saslerr.NotAuthorized}, msg: "xmppstream: authentication failed (not-authorized)"},
	3: {err: &xmppstream.AuthError{Kind: xmppstream.ComponentFail}, msg: "xmppstream: component handshake failed"},
	4: {err: &xmppstream.AuthError{Kind: 42}, msg: "xmppstream: unknown authentication error"},
}

func TestAuthError(t *testing.T) {
	for i, tc := range authErrorTests {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			assert.Equal(t, tc.msg, tc.err.Error())
		})
	}
}

var outcomeErrTests = [...]struct {
	err     error
	outcome xmppstream.ReadOutcome
}{
	0: {outcome: xmppstream.OutcomeElement},
	1: {err: xmppstream.ErrSoftTimeout, outcome: xmppstream.OutcomeSoftTimeout},
	2: {err: xmppstream.ErrStreamFooter, outcome: xmppstream.OutcomeFooter},
	3: {err: &xmppstream.HardError{Err: io.EOF}, outcome: xmppstream.OutcomeHard},
	4: {err: &xmppstream.ParseError{Condition: stream.NotWellFormed}, outcome: xmppstream.OutcomeParse},
	5: {err: errors.Wrap(&xmppstream.ParseError{Condition: stream.NotWellFormed}, "binding"), outcome: xmppstream.OutcomeParse},
	6: {err: io.ErrUnexpectedEOF, outcome: xmppstream.OutcomeOther},
}

func TestOutcome(t *testing.T) {
	for i, tc := range outcomeErrTests {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			assert.Equal(t, tc.outcome, xmppstream.Outcome(tc.err))
		})
	}
}
