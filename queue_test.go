// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"mellium.im/stanzastream/stanza"
)

func ids(q *transmitQueue) []string {
	var out []string
	for _, e := range q.entries {
		out = append(out, e.stanza.(*stanza.Message).ID)
	}
	return out
}

func newEntry(id string) *entry {
	return &entry{stanza: &stanza.Message{ID: id}, token: newToken()}
}

func TestRequeueKeepsOrder(t *testing.T) {
	var q transmitQueue
	assert.Nil(t, q.front())
	q.push(newEntry("a"))
	q.push(newEntry("b"))
	assert.Equal(t, "a", q.pop().stanza.(*stanza.Message).ID)

	q.requeue([]*entry{newEntry("x"), newEntry("y")})
	q.requeue(nil)
	assert.Equal(t, []string{"x", "y", "b"}, ids(&q))
	assert.Equal(t, 3, q.len())
	assert.Equal(t, "x", q.front().stanza.(*stanza.Message).ID)
}

func TestFinishSettlesTokens(t *testing.T) {
	var q transmitQueue
	tracked := newEntry("a")
	q.push(tracked)
	q.push(&entry{stanza: &stanza.Message{ID: "untracked"}})

	errClosed := errors.New("closed")
	q.finish(Dropped, errClosed)
	assert.Zero(t, q.len())
	assert.Equal(t, Dropped, tracked.token.Stage())
	assert.Equal(t, errClosed, tracked.token.Err())
}
