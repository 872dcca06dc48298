// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"

	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/stanza"
)

// ErrNoResponse is returned by SendIQ if the request was sent on a session
// that was replaced before the response arrived.
var ErrNoResponse = errors.New("stanzastream: session reset before the IQ response arrived")

// SendIQ sends a get or set IQ and waits for the matching result or error
// response.
// An error response is returned like a result; check its Type.
// A request without an ID is assigned a random one.
//
// SendIQ does not time out on its own; use a ctx with a deadline.
func (s *StanzaStream) SendIQ(ctx context.Context, iq *stanza.IQ) (*stanza.IQ, error) {
	if iq.Type != stanza.GetIQ && iq.Type != stanza.SetIQ {
		return nil, errors.Errorf("stanzastream: IQ of type %q has no response", iq.Type)
	}
	w := &iqWaiter{reply: make(chan iqResponse, 1)}
	if err := s.enqueue(ctx, &entry{stanza: withID(iq), token: newToken(), iq: w}); err != nil {
		return nil, err
	}
	select {
	case r := <-w.reply:
		return r.iq, r.err
	case <-ctx.Done():
		w.abandoned.Store(true)
		return nil, ctx.Err()
	}
}

type iqResponse struct {
	iq  *stanza.IQ
	err error
}

// iqWaiter is the receiving end of a SendIQ call.
// reply is buffered and written at most once.
type iqWaiter struct {
	reply     chan iqResponse
	abandoned atomic.Bool
}

// iqKey identifies a request by the address it was sent to and its ID.
type iqKey struct {
	to string
	id string
}

// iqTracker matches responses to outstanding requests.
// It is owned by the worker goroutine.
type iqTracker struct {
	pending map[iqKey]*entry
}

// track registers a request.
// Requests whose callers stopped waiting are forgotten here.
func (t *iqTracker) track(e *entry) error {
	if t.pending == nil {
		t.pending = make(map[iqKey]*entry)
	}
	for k, p := range t.pending {
		if p.iq.abandoned.Load() {
			delete(t.pending, k)
		}
	}
	iq := e.stanza.(*stanza.IQ)
	key := iqKey{to: iq.To.String(), id: iq.ID}
	if _, ok := t.pending[key]; ok {
		return errors.Errorf("stanzastream: an IQ with id %q to %q is already awaiting a response", key.id, key.to)
	}
	t.pending[key] = e
	return nil
}

// match completes the request iq answers and reports whether it did.
// Responses from our own account or its server also answer requests sent
// without a to address.
func (t *iqTracker) match(iq *stanza.IQ, addr *jid.JID) bool {
	if iq.Type != stanza.ResultIQ && iq.Type != stanza.ErrorIQ {
		return false
	}
	key := iqKey{to: iq.From.String(), id: iq.ID}
	e, ok := t.pending[key]
	if !ok && key.to != "" && (iq.From.Equal(addr.Bare()) || iq.From.Equal(addr.Domain())) {
		key.to = ""
		e, ok = t.pending[key]
	}
	if !ok {
		return false
	}
	delete(t.pending, key)
	e.iq.reply <- iqResponse{iq: iq}
	return true
}

// reset fails the requests that are no longer queued after a new session
// replaced the old one.
// Requests that will be sent again keep waiting.
func (t *iqTracker) reset(q *transmitQueue) int {
	queued := make(map[*entry]bool, q.len())
	for _, e := range q.entries {
		queued[e] = true
	}
	var n int
	for k, e := range t.pending {
		if !queued[e] {
			delete(t.pending, k)
			e.iq.reply <- iqResponse{err: ErrNoResponse}
			n++
		}
	}
	return n
}

// fail fails every outstanding request with err.
func (t *iqTracker) fail(err error) {
	for k, e := range t.pending {
		delete(t.pending, k)
		e.iq.reply <- iqResponse{err: err}
	}
}
