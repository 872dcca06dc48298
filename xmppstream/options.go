// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream

import (
	"github.com/rs/zerolog"
)

// Option configures a stream when negotiation begins.
type Option func(*options)

type options struct {
	log      zerolog.Logger
	timeouts Timeouts
	capture  int64
}

func newOptions(opts []Option) options {
	o := options{
		log:      zerolog.Nop(),
		timeouts: DefaultTimeouts(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.timeouts = o.timeouts.withDefaults()
	return o
}

// WithLogger sets the logger used by the stream.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithTimeouts sets the timeouts used by the stream.
// Zero fields are replaced with their defaults.
func WithTimeouts(t Timeouts) Option {
	return func(o *options) {
		o.timeouts = t
	}
}

// WithCapture keeps the last n bytes read from the transport and logs them at
// debug level when a parse error occurs.
func WithCapture(n int64) Option {
	return func(o *options) {
		o.capture = n
	}
}
