// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream

import (
	"time"
)

// Timeouts controls how long a stream waits for its peer.
//
// ReadTimeout is the amount of silence after which Read returns
// ErrSoftTimeout.
// ResponseTimeout bounds every wait for a reply: negotiation steps, and the
// period after a soft timeout during which the peer must send something before
// the stream is considered dead.
type Timeouts struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
}

// DefaultTimeouts suit long lived connections to well behaved servers.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ReadTimeout:     300 * time.Second,
		ResponseTimeout: 300 * time.Second,
	}
}

// TightTimeouts detect dead connections quickly at the cost of more traffic.
func TightTimeouts() Timeouts {
	return Timeouts{
		ReadTimeout:     60 * time.Second,
		ResponseTimeout: 15 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultTimeouts.
func (t Timeouts) withDefaults() Timeouts {
	def := DefaultTimeouts()
	if t.ReadTimeout <= 0 {
		t.ReadTimeout = def.ReadTimeout
	}
	if t.ResponseTimeout <= 0 {
		t.ResponseTimeout = def.ResponseTimeout
	}
	return t
}
