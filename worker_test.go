// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFinishLogsDroppedEvents(t *testing.T) {
	var buf bytes.Buffer
	s := &StanzaStream{
		log:    zerolog.Nop(),
		events: make(chan Event, 1),
		done:   make(chan struct{}),
	}
	w := &worker{
		s:       s,
		log:     zerolog.New(&buf),
		pending: []Event{Reset{}, Suspended{}, Resumed{}},
	}
	queued := newEntry("a")
	w.queue.push(queued)
	w.finish()

	assert.IsType(t, Reset{}, <-s.events)
	_, ok := <-s.events
	assert.False(t, ok)
	<-s.done
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, Dropped, queued.token.Stage())
	assert.Contains(t, buf.String(), `"dropped":2`)
}
