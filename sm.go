// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"

	"mellium.im/stanzastream/internal/ns"
	"mellium.im/stanzastream/stream"
	"mellium.im/stanzastream/xmppstream"
)

// AckError is returned when the server acknowledges stanzas that were never
// sent.
// Counters are compared modulo 2³².
type AckError struct {
	// Backwards is set if the server acknowledged fewer stanzas than before.
	Backwards bool

	// Base is the last counter the server acknowledged, Len the number of
	// unacknowledged stanzas and H the counter the server sent.
	Base, Len, H uint32
}

func (e *AckError) Error() string {
	if e.Backwards {
		return fmt.Sprintf("stanzastream: server ack went backwards: h=%d, unacked stanzas start at %d", e.H, e.Base)
	}
	return fmt.Sprintf("stanzastream: server acked more stanzas than were sent: h=%d, unacked stanzas cover %d..<%d", e.H, e.Base, e.Base+e.Len)
}

// streamError is the error sent to the server before disconnecting.
func (e *AckError) streamError() stream.Error {
	return stream.UndefinedCondition.WithApp(xml.StartElement{
		Name: xml.Name{Space: ns.SM, Local: "handled-count-too-high"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "h"}, Value: strconv.FormatUint(uint64(e.H), 10)},
			{Name: xml.Name{Local: "send-count"}, Value: strconv.FormatUint(uint64(e.Base+e.Len), 10)},
		},
	}, nil)
}

// smState is the XEP-0198 state of a session.
// It outlives the transport so that the session can be resumed.
type smState struct {
	// outbound is the counter of the oldest unacknowledged stanza.
	outbound uint32
	inbound  uint32

	// pendingReq is set while an <r/> is waiting for its answer.
	pendingReq bool

	resumable bool
	id        string
	location  string

	unacked []*entry
}

func newSMState(enabled xmppstream.SM) *smState {
	return &smState{
		resumable: enabled.Resume && enabled.ID != "",
		id:        enabled.ID,
		location:  enabled.Location,
	}
}

// sent records an entry that was written to the stream.
func (s *smState) sent(e *entry) {
	s.unacked = append(s.unacked, e)
}

// acked processes a counter sent by the server.
func (s *smState) acked(h uint32) error {
	drop := h - s.outbound
	if drop == 0 {
		return nil
	}
	if uint64(drop) > uint64(len(s.unacked)) {
		return &AckError{
			Backwards: drop > math.MaxUint32/2,
			Base:      s.outbound,
			Len:       uint32(len(s.unacked)),
			H:         h,
		}
	}
	for i, e := range s.unacked[:drop] {
		e.token.set(Acked, nil)
		s.unacked[i] = nil
	}
	s.unacked = s.unacked[drop:]
	s.outbound = h
	return nil
}

// resume processes the counter from <resumed/> and returns the entries that
// must be sent again, in order.
func (s *smState) resume(h uint32) ([]*entry, error) {
	if err := s.acked(h); err != nil {
		return nil, err
	}
	return s.take(), nil
}

// take removes and returns every unacknowledged entry.
func (s *smState) take() []*entry {
	unacked := s.unacked
	s.unacked = nil
	return unacked
}
