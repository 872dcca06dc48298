// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"context"
	"strconv"
	"sync"
)

// Stage is the delivery stage of a stanza submitted with SendWithToken.
// Stages are ordered; a token never moves to an earlier stage.
type Stage uint8

// A list of delivery stages.
const (
	// Queued stanzas wait in the outbound queue.
	Queued Stage = iota
	// Sent stanzas were handed to the transport.
	Sent
	// Acked stanzas were acknowledged by the server with stream management.
	Acked
	// Failed stanzas will not be sent; Err reports why.
	Failed
	// Dropped stanzas were discarded when the stream was closed.
	Dropped
)

var stageNames = [...]string{"queued", "sent", "acked", "failed", "dropped"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "Stage(" + strconv.Itoa(int(s)) + ")"
}

// Token tracks the delivery of a single stanza.
type Token struct {
	mu      sync.Mutex
	stage   Stage
	err     error
	changed chan struct{}
}

func newToken() *Token {
	return &Token{changed: make(chan struct{})}
}

// Stage returns the current delivery stage.
func (t *Token) Stage() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// Err returns the reason a Failed stanza failed.
func (t *Token) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the token reaches stage or any later stage and returns the
// stage it is in.
// Waiting for Acked returns early with Failed or Dropped.
func (t *Token) Wait(ctx context.Context, stage Stage) (Stage, error) {
	for {
		t.mu.Lock()
		cur, changed := t.stage, t.changed
		t.mu.Unlock()
		if cur >= stage {
			return cur, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return cur, ctx.Err()
		}
	}
}

// set advances the token.
// It is a no-op on untracked entries and for stages that would move the
// token backwards.
func (t *Token) set(stage Stage, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if stage <= t.stage {
		return
	}
	t.stage = stage
	t.err = err
	close(t.changed)
	t.changed = make(chan struct{})
}
