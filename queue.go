// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"mellium.im/stanzastream/stanza"
)

// entry is a stanza waiting for delivery.
// The token is nil for stanzas nobody tracks and iq is only set for requests
// made with SendIQ.
type entry struct {
	// seq is assigned when the worker accepts the entry and increases by one
	// for every entry.
	seq    uint64
	stanza stanza.Stanza
	token  *Token
	iq     *iqWaiter
}

// transmitQueue is the ordered outbound queue.
// It is owned by the worker goroutine.
type transmitQueue struct {
	entries []*entry
}

func (q *transmitQueue) len() int {
	return len(q.entries)
}

func (q *transmitQueue) push(e *entry) {
	q.entries = append(q.entries, e)
}

// front returns the next entry to send or nil.
func (q *transmitQueue) front() *entry {
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[0]
}

func (q *transmitQueue) pop() *entry {
	e := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	if len(q.entries) == 0 {
		q.entries = nil
	}
	return e
}

// requeue puts entries back in front of the queue, keeping their order.
func (q *transmitQueue) requeue(entries []*entry) {
	if len(entries) == 0 {
		return
	}
	merged := make([]*entry, 0, len(entries)+len(q.entries))
	merged = append(merged, entries...)
	q.entries = append(merged, q.entries...)
}

// finish moves every entry to stage and empties the queue.
func (q *transmitQueue) finish(stage Stage, err error) {
	for _, e := range q.entries {
		e.token.set(stage, err)
	}
	q.entries = nil
}
