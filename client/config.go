// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"crypto/tls"

	"mellium.im/sasl"

	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/xmppstream"
)

// DefaultMechanisms is the preference order used when Config.Mechanisms is
// empty.
// Channel binding variants are only used once the stream is encrypted.
var DefaultMechanisms = []sasl.Mechanism{
	sasl.ScramSha256Plus,
	sasl.ScramSha1Plus,
	sasl.ScramSha256,
	sasl.ScramSha1,
	sasl.Plain,
}

// Config configures a client connection.
type Config struct {
	// JID is the account to log in as.
	// Its domainpart is the stream's "to" address and its localpart is the
	// SASL username.
	JID      *jid.JID `yaml:"-"`
	Password string   `yaml:"password"`
	Resource string   `yaml:"resource"`
	Lang     string   `yaml:"lang"`

	// Mechanisms lists SASL mechanisms in order of preference.
	Mechanisms []sasl.Mechanism `yaml:"-"`

	// TLS is used by the default upgrader.
	// If nil, a config with ServerName set to the JID's domainpart is used.
	TLS *tls.Config `yaml:"-"`

	// Upgrade replaces the TLS upgrade performed after STARTTLS.
	Upgrade Upgrader `yaml:"-"`

	// RequireTLS fails the login if the server does not offer STARTTLS and the
	// transport is not already encrypted.
	RequireTLS bool `yaml:"require_tls"`

	// AllowInsecure permits PLAIN authentication over an unencrypted stream.
	AllowInsecure bool `yaml:"allow_insecure"`

	Timeouts xmppstream.Timeouts `yaml:"timeouts"`
}

func (c Config) mechanisms() []sasl.Mechanism {
	if len(c.Mechanisms) == 0 {
		return DefaultMechanisms
	}
	return c.Mechanisms
}

func (c Config) upgrader() Upgrader {
	if c.Upgrade != nil {
		return c.Upgrade
	}
	cfg := c.TLS
	if cfg == nil {
		cfg = &tls.Config{
			ServerName: c.JID.Domainpart(),
			MinVersion: tls.VersionTLS12,
		}
	}
	return TLSUpgrader(cfg)
}
