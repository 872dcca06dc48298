// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"gopkg.in/yaml.v2"

	"mellium.im/stanzastream"
	"mellium.im/stanzastream/client"
)

type config struct {
	// JID is the account, or the component address if Secret is set.
	JID string `yaml:"jid"`

	// Addr overrides server discovery.
	Addr     string `yaml:"addr"`
	NoLookup bool   `yaml:"no_lookup"`

	// Secret makes stanzactl connect as a component.
	Secret string `yaml:"secret"`

	Client  client.Config       `yaml:"client"`
	Stream  stanzastream.Config `yaml:"stream"`
	Breaker breakerConfig       `yaml:"breaker"`
	Logger  loggerConfig        `yaml:"logger"`
}

type breakerConfig struct {
	// MaxFailures is the number of consecutive failed connection attempts
	// after which attempts are suspended for Timeout.
	// Zero disables the breaker.
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

func (c breakerConfig) settings() gobreaker.Settings {
	limit := c.MaxFailures
	return gobreaker.Settings{
		Name:    "stanzactl",
		Timeout: c.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= limit
		},
	}
}

type loggerConfig struct {
	Level zerolog.Level
}

type loggerProxyType struct {
	Level string `yaml:"level"`
}

// UnmarshalYAML satisfies the yaml.Unmarshaler interface.
func (l *loggerConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	lp := loggerProxyType{}
	if err := unmarshal(&lp); err != nil {
		return err
	}
	if lp.Level == "" {
		l.Level = zerolog.InfoLevel
		return nil
	}
	level, err := zerolog.ParseLevel(lp.Level)
	if err != nil {
		return errors.Wrap(err, "stanzactl: logger")
	}
	l.Level = level
	return nil
}

func loadConfig(path string) (config, error) {
	cfg := config{Logger: loggerConfig{Level: zerolog.InfoLevel}}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err = yaml.UnmarshalStrict(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "stanzactl: parsing %s", path)
	}
	if cfg.JID == "" {
		return cfg, errors.Errorf("stanzactl: %s: no jid configured", path)
	}
	return cfg, nil
}
