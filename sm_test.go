// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"encoding/xml"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/stanzastream/internal/ns"
	"mellium.im/stanzastream/stanza"
	"mellium.im/stanzastream/stream"
	"mellium.im/stanzastream/xmppstream"
)

func sentEntries(sm *smState, n int) []*entry {
	entries := make([]*entry, n)
	for i := range entries {
		entries[i] = &entry{
			stanza: &stanza.Message{ID: strconv.Itoa(i)},
			token:  newToken(),
		}
		entries[i].token.set(Sent, nil)
		sm.sent(entries[i])
	}
	return entries
}

var ackTests = [...]struct {
	outbound  uint32
	sent      int
	h         uint32
	remaining int
	err       *AckError
}{
	0: {sent: 3, h: 0, remaining: 3},
	1: {sent: 3, h: 2, remaining: 1},
	2: {sent: 3, h: 3},
	3: {sent: 3, h: 4, remaining: 3, err: &AckError{Base: 0, Len: 3, H: 4}},
	4: {outbound: math.MaxUint32 - 1, sent: 3, h: 1},
	5: {outbound: 10, sent: 3, h: 9, remaining: 3, err: &AckError{Backwards: true, Base: 10, Len: 3, H: 9}},
	6: {outbound: 10, h: 10},
}

func TestAcked(t *testing.T) {
	for i, tc := range ackTests {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			sm := &smState{outbound: tc.outbound}
			entries := sentEntries(sm, tc.sent)
			err := sm.acked(tc.h)
			if tc.err != nil {
				assert.Equal(t, tc.err, err)
				assert.Equal(t, tc.outbound, sm.outbound)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.h, sm.outbound)
			}
			require.Len(t, sm.unacked, tc.remaining)
			for j, e := range entries {
				want := Sent
				if j < tc.sent-tc.remaining {
					want = Acked
				}
				assert.Equal(t, want, e.token.Stage(), "entry %d", j)
			}
		})
	}
}

func TestResumeReturnsUnacked(t *testing.T) {
	sm := newSMState(xmppstream.SM{Kind: xmppstream.SMEnabled, ID: "sm-1", Resume: true})
	assert.True(t, sm.resumable)
	entries := sentEntries(sm, 3)

	resend, err := sm.resume(1)
	require.NoError(t, err)
	assert.Equal(t, entries[1:], resend)
	assert.Empty(t, sm.unacked)
	assert.Equal(t, Acked, entries[0].token.Stage())
	assert.Equal(t, Sent, entries[1].token.Stage())

	_, err = sm.resume(5)
	var aerr *AckError
	assert.ErrorAs(t, err, &aerr)
}

func TestNotResumableWithoutID(t *testing.T) {
	sm := newSMState(xmppstream.SM{Kind: xmppstream.SMEnabled, Resume: true})
	assert.False(t, sm.resumable)
}

func TestAckErrorStreamError(t *testing.T) {
	err := &AckError{Base: 2, Len: 1, H: 5}
	se := err.streamError()
	assert.Equal(t, stream.UndefinedCondition.Err, se.Err)
	assert.Equal(t, xml.Name{Space: ns.SM, Local: "handled-count-too-high"}, se.App)
	assert.Contains(t, err.Error(), "h=5")
}
