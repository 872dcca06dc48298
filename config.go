// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"time"

	"mellium.im/stanzastream/xmppstream"
)

// Defaults for zero Config fields.
const (
	DefaultQueueCapacity   = 64
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBackoffInitial  = time.Second
	DefaultBackoffMax      = 30 * time.Second
)

// remoteShutdownTimeout bounds how long we wait for the peer to close its side
// of a stream.
const remoteShutdownTimeout = 5 * time.Second

// Config represents the configuration of a StanzaStream.
// The zero value is usable.
type Config struct {
	// QueueCapacity bounds the number of stanzas that are queued or sent but
	// not yet acknowledged.
	// Send blocks while the bound is reached.
	// It also sizes the buffer of received events.
	QueueCapacity int `yaml:"queue_capacity"`

	Backoff Backoff `yaml:"backoff"`

	// Timeouts are applied to every stream the connector creates.
	Timeouts xmppstream.Timeouts `yaml:"timeouts"`

	// ShutdownTimeout bounds how long Close spends sending queued stanzas.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Resource is requested when binding if the JID has no resourcepart.
	Resource string `yaml:"resource"`
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff.Initial = DefaultBackoffInitial
	}
	if c.Backoff.Max <= 0 {
		c.Backoff.Max = DefaultBackoffMax
	}
	if c.Backoff.Max < c.Backoff.Initial {
		c.Backoff.Max = c.Backoff.Initial
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}
