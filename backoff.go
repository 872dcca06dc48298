// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"math/rand"
	"time"
)

// Backoff configures the delay between connection attempts.
// The delay starts at Initial and doubles after every failed attempt up to
// Max.
// Each delay is jittered down by up to half.
type Backoff struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

type backoff struct {
	cfg  Backoff
	cur  time.Duration
	rand *rand.Rand
}

func newBackoff(cfg Backoff) *backoff {
	return &backoff{
		cfg: cfg,
		/* #nosec */
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// next returns the delay before the next attempt.
func (b *backoff) next() time.Duration {
	switch {
	case b.cur == 0:
		b.cur = b.cfg.Initial
	case b.cur < b.cfg.Max:
		b.cur *= 2
	}
	if b.cur > b.cfg.Max {
		b.cur = b.cfg.Max
	}
	half := b.cur / 2
	return half + time.Duration(b.rand.Int63n(int64(b.cur-half)+1))
}

// reset starts over after a successful attempt.
func (b *backoff) reset() {
	b.cur = 0
}
