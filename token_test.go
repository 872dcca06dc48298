// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenWait(t *testing.T) {
	tok := newToken()
	go func() {
		tok.set(Sent, nil)
		tok.set(Acked, nil)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stage, err := tok.Wait(ctx, Acked)
	require.NoError(t, err)
	assert.Equal(t, Acked, stage)

	// Tokens never move backwards.
	tok.set(Sent, nil)
	assert.Equal(t, Acked, tok.Stage())
}

func TestTokenWaitCanceled(t *testing.T) {
	tok := newToken()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stage, err := tok.Wait(ctx, Sent)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Queued, stage)
}

func TestTokenFailed(t *testing.T) {
	tok := newToken()
	errRejected := errors.New("rejected")
	tok.set(Failed, errRejected)
	stage, err := tok.Wait(context.Background(), Acked)
	require.NoError(t, err)
	assert.Equal(t, Failed, stage)
	assert.Equal(t, errRejected, tok.Err())

	var untracked *Token
	untracked.set(Sent, nil)
}

var stringerTests = [...]struct {
	v    interface{ String() string }
	want string
}{
	0: {v: Queued, want: "queued"},
	1: {v: Dropped, want: "dropped"},
	2: {v: Stage(42), want: "Stage(42)"},
	3: {v: Disconnected, want: "disconnected"},
	4: {v: Live, want: "live"},
	5: {v: Closing, want: "closing"},
	6: {v: State(42), want: "State(42)"},
}

func TestStringers(t *testing.T) {
	for i, tc := range stringerTests {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.v.String())
		})
	}
}
