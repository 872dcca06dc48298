// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The stanzactl command keeps a stream to an XMPP server open, sending each
// line read from standard input as a chat message and printing the messages it
// receives.
//
// Input lines have the form:
//
//	recipient@example.net message body
//
// For more information try running:
//
//	stanzactl -help
package main

import (
	"bufio"
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"mellium.im/stanzastream"
	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/stanza"
)

/* #nosec */
const (
	envPass   = "XMPP_PASS"
	envSecret = "XMPP_SECRET"
)

func main() {
	var (
		cfgPath = "stanzactl.yml"
		verbose bool
	)
	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage of %s:\n", flags.Name())
		fmt.Fprintf(flags.Output(), "\n  $%s: overrides the configured password\n  $%s: overrides the configured component secret\n\n", envPass, envSecret)
		flags.PrintDefaults()
	}
	flags.StringVar(&cfgPath, "config", cfgPath, "the configuration file")
	flags.BoolVar(&verbose, "v", verbose, "turns on debug logging")

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	switch err := flags.Parse(os.Args[1:]); err {
	case flag.ErrHelp:
		return
	case nil:
	default:
		logger.Fatal().Err(err).Msg("parsing flags")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading configuration")
	}
	if pass := os.Getenv(envPass); pass != "" {
		cfg.Client.Password = pass
	}
	if secret := os.Getenv(envSecret); secret != "" {
		cfg.Secret = secret
	}
	level := cfg.Logger.Level
	if verbose {
		level = zerolog.DebugLevel
	}
	logger = logger.Level(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT and gracefully shut down.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		select {
		case <-ctx.Done():
		case <-c:
			cancel()
		}
	}()

	if err := run(ctx, cfg, os.Stdin, os.Stdout, logger); err != nil {
		logger.Fatal().Err(err).Msg("stream ended")
	}
}

func connector(cfg config) stanzastream.Connector {
	dialer := stanzastream.Dialer{Addr: cfg.Addr, NoLookup: cfg.NoLookup}
	var conn stanzastream.Connector
	if cfg.Secret != "" {
		conn = &stanzastream.ComponentConnector{Dialer: dialer, Secret: cfg.Secret}
	} else {
		conn = &stanzastream.ClientConnector{Dialer: dialer, Config: cfg.Client}
	}
	if cfg.Breaker.MaxFailures > 0 {
		conn = stanzastream.NewBreakerConnector(conn, cfg.Breaker.settings())
	}
	return conn
}

func run(ctx context.Context, cfg config, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	addr, err := jid.Parse(cfg.JID)
	if err != nil {
		return errors.Wrap(err, "parsing jid")
	}
	s := stanzastream.New(connector(cfg), addr, cfg.Stream, stanzastream.WithLogger(logger))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	events := s.Events()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			msg, err := parseLine(line)
			if err != nil {
				logger.Warn().Err(err).Msg("skipping input")
				continue
			}
			if err = s.Send(ctx, msg); err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				return s.Err()
			}
			printEvent(out, ev, logger)
		case <-ctx.Done():
			closeCtx, cancel := context.WithTimeout(context.Background(), 2*stanzastream.DefaultShutdownTimeout)
			defer cancel()
			return s.Close(closeCtx)
		}
	}
}

func parseLine(line string) (*stanza.Message, error) {
	to, body, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok {
		return nil, errors.Errorf("expected recipient and body, got %q", line)
	}
	j, err := jid.Parse(to)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing recipient %q", to)
	}
	var payload strings.Builder
	payload.WriteString("<body>")
	// Writes to a strings.Builder never fail.
	_ = xml.EscapeText(&payload, []byte(body))
	payload.WriteString("</body>")
	return &stanza.Message{
		To:      j,
		Type:    stanza.ChatMessage,
		Payload: []byte(payload.String()),
	}, nil
}

func printEvent(out io.Writer, ev stanzastream.Event, logger zerolog.Logger) {
	switch v := ev.(type) {
	case stanzastream.Reset:
		logger.Info().Stringer("jid", v.JID).Msg("session started")
	case stanzastream.Suspended:
		logger.Info().Msg("connection lost")
	case stanzastream.Resumed:
		logger.Info().Msg("session resumed")
	case stanzastream.Stanza:
		msg, ok := v.Stanza.(*stanza.Message)
		if !ok {
			logger.Debug().Type("stanza", v.Stanza).Msg("ignoring stanza")
			return
		}
		from := "unknown"
		if msg.From != nil {
			from = msg.From.String()
		}
		fmt.Fprintf(out, "%s %s %s\n", time.Now().Format(time.Kitchen), from, body(msg.Payload))
	}
}

// body returns the text of the first body element in payload.
func body(payload []byte) string {
	var v struct {
		Body string `xml:"body"`
	}
	wrapped := append(append([]byte("<message>"), payload...), "</message>"...)
	if err := xml.Unmarshal(wrapped, &v); err != nil {
		return ""
	}
	return v.Body
}
