// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/stanzastream/internal/ns"
	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/stanza"
	"mellium.im/stanzastream/stream"
	"mellium.im/stanzastream/xmppstream"
)

const (
	peerHeader   = `<?xml version='1.0'?><stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' id='abc' from='example.net' version='1.0'>`
	peerFeatures = `<stream:features><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'/></stream:features>`
)

var clientHeader = xmppstream.Header{
	To:      jid.MustParse("example.net"),
	Version: stream.DefaultVersion,
}

// rawPeer drains everything written to conn and writes each script entry once
// the previous one has been consumed.
// A send on the returned channel releases the next entry.
func rawPeer(t *testing.T, conn net.Conn, script ...string) chan<- struct{} {
	t.Helper()
	next := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, conn)
	}()
	go func() {
		for i, s := range script {
			if i > 0 {
				<-next
			}
			if _, err := io.WriteString(conn, s); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return next
}

func negotiate(t *testing.T, timeouts xmppstream.Timeouts, script ...string) (*xmppstream.Stream[xmppstream.Element], chan<- struct{}) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	next := rawPeer(t, server, append([]string{peerHeader + peerFeatures}, script...)...)

	ctx := context.Background()
	pending, err := xmppstream.Initiate(client, xmppstream.ElementCodec, xmppstream.WithTimeouts(timeouts), xmppstream.WithCapture(512)).
		SendHeader(ctx, clientHeader)
	require.NoError(t, err)
	assert.Equal(t, "abc", pending.Info().ID)
	s, features, err := pending.RecvFeatures(ctx)
	require.NoError(t, err)
	assert.True(t, features.Bind)
	return s, next
}

func TestNegotiateWithResponder(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	ctx := context.Background()

	type served struct {
		s   *xmppstream.Stream[xmppstream.Element]
		err error
	}
	done := make(chan served, 1)
	go func() {
		accepted, err := xmppstream.Accept(ctx, server, xmppstream.ElementCodec)
		if err != nil {
			done <- served{err: err}
			return
		}
		pending, err := accepted.SendHeader(ctx, xmppstream.Header{
			From:    jid.MustParse("example.net"),
			Version: stream.DefaultVersion,
		})
		if err != nil {
			done <- served{err: err}
			return
		}
		s, err := pending.SendFeatures(ctx, xmppstream.Features{
			Mechanisms: []string{"PLAIN"},
			SM:         true,
		})
		done <- served{s: s, err: err}
	}()

	pending, err := xmppstream.Initiate(client, xmppstream.ElementCodec).SendHeader(ctx, clientHeader)
	require.NoError(t, err)
	assert.NotEmpty(t, pending.Info().ID)
	assert.Equal(t, ns.Client, pending.Info().XMLNS)
	s, features, err := pending.RecvFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PLAIN"}, features.Mechanisms)
	assert.True(t, features.SM)

	srv := <-done
	require.NoError(t, srv.err)
	assert.Equal(t, s.ID(), srv.s.ID())

	go func() {
		_ = s.Send(ctx, &stanza.Message{ID: "m1", Type: stanza.ChatMessage})
	}()
	el, err := srv.s.Read(ctx)
	require.NoError(t, err)
	msg := el.(xmppstream.Stanza).Stanza.(*stanza.Message)
	assert.Equal(t, "m1", msg.ID)
}

func TestStatesAreSingleUse(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	rawPeer(t, server, peerHeader+peerFeatures)
	ctx := context.Background()

	initiating := xmppstream.Initiate(client, xmppstream.ElementCodec)
	pending, err := initiating.SendHeader(ctx, clientHeader)
	require.NoError(t, err)
	_, err = initiating.SendHeader(ctx, clientHeader)
	assert.ErrorIs(t, err, xmppstream.ErrConsumed)

	_, _, err = pending.RecvFeatures(ctx)
	require.NoError(t, err)
	_, _, err = pending.RecvFeatures(ctx)
	assert.ErrorIs(t, err, xmppstream.ErrConsumed)
	_, err = pending.SkipFeatures()
	assert.ErrorIs(t, err, xmppstream.ErrConsumed)
}

func TestRecvFeaturesRejectsOtherElements(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	rawPeer(t, server, peerHeader+`<message xmlns='jabber:client'/>`)
	ctx := context.Background()

	pending, err := xmppstream.Initiate(client, xmppstream.ElementCodec).SendHeader(ctx, clientHeader)
	require.NoError(t, err)
	s, _, err := pending.RecvFeatures(ctx)
	assert.Nil(t, s)
	var perr *xmppstream.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, xmppstream.InvalidToken, perr.Kind)
}

func TestRecvFeaturesStreamError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	rawPeer(t, server, peerHeader+`<stream:error><host-unknown xmlns='urn:ietf:params:xml:ns:xmpp-streams'/></stream:error>`)
	ctx := context.Background()

	pending, err := xmppstream.Initiate(client, xmppstream.ElementCodec).SendHeader(ctx, clientHeader)
	require.NoError(t, err)
	_, _, err = pending.RecvFeatures(ctx)
	var perr *xmppstream.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, xmppstream.PeerStreamError, perr.Kind)
	assert.ErrorIs(t, err, stream.HostUnknown)
}

var headerTests = [...]struct {
	header string
	kind   xmppstream.ProtocolKind
}{
	0: {
		header: `<stream:stream xmlns='jabber:server' xmlns:stream='http://etherx.jabber.org/streams' id='abc' version='1.0'>`,
		kind:   xmppstream.NoStreamNamespace,
	},
	1: {
		header: `<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' version='1.0'>`,
		kind:   xmppstream.NoStreamID,
	},
	2: {
		header: `<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' id='abc' version='2.0'>`,
		kind:   xmppstream.InvalidStreamStart,
	},
	3: {
		header: `<features/>`,
		kind:   xmppstream.InvalidStreamStart,
	},
}

func TestSendHeaderValidation(t *testing.T) {
	for i, tc := range headerTests {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			rawPeer(t, server, tc.header)
			_, err := xmppstream.Initiate(client, xmppstream.ElementCodec).SendHeader(context.Background(), clientHeader)
			var perr *xmppstream.ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.kind, perr.Kind)
		})
	}
}

func TestReadSoftTimeoutThenElement(t *testing.T) {
	s, next := negotiate(t, xmppstream.Timeouts{
		ReadTimeout:     50 * time.Millisecond,
		ResponseTimeout: 2 * time.Second,
	}, `<message xmlns='jabber:client' id='late'/>`)
	ctx := context.Background()

	_, err := s.Read(ctx)
	assert.ErrorIs(t, err, xmppstream.ErrSoftTimeout)
	assert.Equal(t, xmppstream.OutcomeSoftTimeout, xmppstream.Outcome(err))

	next <- struct{}{}
	el, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", el.(xmppstream.Stanza).Stanza.(*stanza.Message).ID)
}

func TestReadUnresponsivePeer(t *testing.T) {
	s, _ := negotiate(t, xmppstream.Timeouts{
		ReadTimeout:     30 * time.Millisecond,
		ResponseTimeout: 60 * time.Millisecond,
	})
	ctx := context.Background()

	_, err := s.Read(ctx)
	require.ErrorIs(t, err, xmppstream.ErrSoftTimeout)
	_, err = s.Read(ctx)
	var hard *xmppstream.HardError
	require.ErrorAs(t, err, &hard)
	_, err = s.Read(ctx)
	assert.ErrorAs(t, err, &hard)
}

func TestReadKeepalivesAreInvisible(t *testing.T) {
	s, next := negotiate(t, xmppstream.Timeouts{
		ReadTimeout:     300 * time.Millisecond,
		ResponseTimeout: time.Second,
	}, " ", " ", " ", " ", `<presence xmlns='jabber:client'/>`)
	go func() {
		for i := 0; i < 5; i++ {
			time.Sleep(100 * time.Millisecond)
			next <- struct{}{}
		}
	}()
	el, err := s.Read(context.Background())
	require.NoError(t, err)
	_, ok := el.(xmppstream.Stanza).Stanza.(*stanza.Presence)
	assert.True(t, ok)
}

var outcomeTests = [...]struct {
	script  string
	outcome xmppstream.ReadOutcome
}{
	0: {script: `</stream:stream>`, outcome: xmppstream.OutcomeFooter},
	1: {script: `<message xmlns='jabber:client'><</message>`, outcome: xmppstream.OutcomeParse},
	2: {script: `hello<a/>`, outcome: xmppstream.OutcomeParse},
	3: {script: `<!-- comment -->`, outcome: xmppstream.OutcomeParse},
}

func TestReadTerminalOutcomes(t *testing.T) {
	for i, tc := range outcomeTests {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			s, next := negotiate(t, xmppstream.DefaultTimeouts(), tc.script)
			next <- struct{}{}
			ctx := context.Background()
			_, err := s.Read(ctx)
			assert.Equal(t, tc.outcome, xmppstream.Outcome(err))
			assert.True(t, xmppstream.Terminal(err))
			_, again := s.Read(ctx)
			assert.Equal(t, err, again)
		})
	}
}

func TestParseErrorLogsWire(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	rawPeer(t, server, peerHeader+peerFeatures+`<message xmlns='jabber:client'><<`)

	var buf bytes.Buffer
	ctx := context.Background()
	pending, err := xmppstream.Initiate(client, xmppstream.ElementCodec,
		xmppstream.WithCapture(64),
		xmppstream.WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)),
	).SendHeader(ctx, clientHeader)
	require.NoError(t, err)
	s, _, err := pending.RecvFeatures(ctx)
	require.NoError(t, err)
	_, err = s.Read(ctx)
	require.Equal(t, xmppstream.OutcomeParse, xmppstream.Outcome(err))
	assert.Contains(t, buf.String(), `"message":"parse error"`)
	assert.Contains(t, buf.String(), `<<`)
}

func TestReadTransportClosed(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		buf := make([]byte, 4096)
		_, _ = server.Read(buf)
		_, _ = io.WriteString(server, peerHeader+peerFeatures)
		server.Close()
	}()
	ctx := context.Background()
	pending, err := xmppstream.Initiate(client, xmppstream.ElementCodec).SendHeader(ctx, clientHeader)
	require.NoError(t, err)
	s, _, err := pending.RecvFeatures(ctx)
	require.NoError(t, err)
	_, err = s.Read(ctx)
	assert.Equal(t, xmppstream.OutcomeHard, xmppstream.Outcome(err))
}

func TestRestartWhileReading(t *testing.T) {
	s, _ := negotiate(t, xmppstream.Timeouts{ReadTimeout: 10 * time.Millisecond, ResponseTimeout: time.Second})
	_, err := s.Read(context.Background())
	require.ErrorIs(t, err, xmppstream.ErrSoftTimeout)
	_, err = s.Restart()
	assert.ErrorIs(t, err, xmppstream.ErrReadPending)
	_, err = s.Detach()
	assert.ErrorIs(t, err, xmppstream.ErrReadPending)
}

func TestSkipFeaturesForComponents(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	rawPeer(t, server,
		`<stream:stream xmlns='jabber:component:accept' xmlns:stream='http://etherx.jabber.org/streams' id='3BF96D32' from='plays.shakespeare.lit'>`,
		`<handshake/>`,
	)
	ctx := context.Background()
	pending, err := xmppstream.Initiate(client, xmppstream.ElementCodec).SendHeader(ctx, xmppstream.Header{
		To: jid.MustParse("plays.shakespeare.lit"),
		NS: ns.Component,
	})
	require.NoError(t, err)
	s, err := pending.SkipFeatures()
	require.NoError(t, err)
	assert.Equal(t, "3BF96D32", s.ID())
}
