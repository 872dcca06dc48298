// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpptest

import (
	"context"
	"encoding/xml"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"mellium.im/sasl"
	"mellium.im/xmlstream"

	"mellium.im/stanzastream/internal/ns"
	"mellium.im/stanzastream/internal/saslerr"
	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/stanza"
	"mellium.im/stanzastream/stream"
	"mellium.im/stanzastream/xmppstream"
)

// Domain is the address of the test server.
var Domain = jid.MustParse("example.net")

type testWriter struct {
	prefix string
	t      testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s: %s", w.prefix, p)
	return len(p), nil
}

// Logger returns a logger that writes to the test log.
func Logger(t testing.TB, prefix string) zerolog.Logger {
	return zerolog.New(testWriter{prefix: prefix, t: t}).With().Timestamp().Logger()
}

// Handler scripts the server side of a connection.
type Handler func(ctx context.Context, p *Peer) error

// Serve runs h against the server end of a loopback TCP connection and
// returns the client end.
// The kernel buffers both directions so that client and server may write at
// the same time, which an unbuffered net.Pipe would not allow.
// An error returned by h fails the test unless the test is already cleaning
// up.
func Serve(t testing.TB, h Handler) net.Conn {
	t.Helper()
	client, server := dial(t)
	ctx, cancel := context.WithCancel(context.Background())
	var closing atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, t, &closing, server, h)
	}()
	t.Cleanup(func() {
		closing.Store(true)
		cancel()
		client.Close()
		server.Close()
		<-done
	})
	return client
}

// Listen accepts a single connection on a loopback address, runs h against it
// and returns the address to dial.
func Listen(t testing.TB, h Handler) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("xmpptest: listening: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	var (
		closing atomic.Bool
		mu      sync.Mutex
		server  net.Conn
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := l.Accept()
		if err != nil {
			if !closing.Load() {
				t.Errorf("xmpptest: accepting: %v", err)
			}
			return
		}
		mu.Lock()
		server = conn
		mu.Unlock()
		run(ctx, t, &closing, conn, h)
	}()
	t.Cleanup(func() {
		closing.Store(true)
		cancel()
		l.Close()
		mu.Lock()
		if server != nil {
			server.Close()
		}
		mu.Unlock()
		<-done
	})
	return l.Addr().String()
}

func run(ctx context.Context, t testing.TB, closing *atomic.Bool, conn net.Conn, h Handler) {
	p := &Peer{
		rwc: conn,
		log: Logger(t, "server"),
		Header: xmppstream.Header{
			From:    Domain,
			Version: stream.DefaultVersion,
		},
	}
	if err := h(ctx, p); err != nil && !closing.Load() {
		t.Errorf("xmpptest: server failed: %v", err)
	}
}

func dial(t testing.TB) (client, server net.Conn) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("xmpptest: listening: %v", err)
	}
	defer l.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- conn
	}()
	client, err = net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("xmpptest: dialing: %v", err)
	}
	server = <-accepted
	if server == nil {
		client.Close()
		t.Fatalf("xmpptest: accept failed")
	}
	return client, server
}

// Peer is the server side of a test connection.
type Peer struct {
	// Header is sent in reply to every stream header.
	Header xmppstream.Header

	Stream *xmppstream.Stream[xmppstream.Element]

	rwc io.ReadWriteCloser
	log zerolog.Logger
}

// Accept waits for a stream header and replies.
// If features is nil no features are sent.
func (p *Peer) Accept(ctx context.Context, features *xmppstream.Features) error {
	accepted, err := xmppstream.Accept(ctx, p.rwc, xmppstream.ElementCodec, xmppstream.WithLogger(p.log))
	if err != nil {
		return err
	}
	return p.reply(ctx, accepted, features)
}

// Restart waits for the client to restart the stream and replies.
func (p *Peer) Restart(ctx context.Context, features *xmppstream.Features) error {
	accepted, err := p.Stream.RestartAccept(ctx)
	if err != nil {
		return err
	}
	return p.reply(ctx, accepted, features)
}

func (p *Peer) reply(ctx context.Context, accepted *xmppstream.AcceptedStream[xmppstream.Element], features *xmppstream.Features) error {
	pending, err := accepted.SendHeader(ctx, p.Header)
	if err != nil {
		return err
	}
	if features == nil {
		p.Stream, err = pending.SkipFeatures()
		return err
	}
	p.Stream, err = pending.SendFeatures(ctx, *features)
	return err
}

// Read returns the next element, ignoring soft timeouts.
func (p *Peer) Read(ctx context.Context) (xmppstream.Element, error) {
	for {
		el, err := p.Stream.Read(ctx)
		if errors.Is(err, xmppstream.ErrSoftTimeout) {
			continue
		}
		return el, err
	}
}

// ReadStanza returns the next element, which must be a stanza.
func (p *Peer) ReadStanza(ctx context.Context) (stanza.Stanza, error) {
	el, err := p.Read(ctx)
	if err != nil {
		return nil, err
	}
	st, ok := el.(xmppstream.Stanza)
	if !ok {
		return nil, errors.Errorf("xmpptest: expected stanza, got %T", el)
	}
	return st.Stanza, nil
}

// Send writes el and flushes it.
func (p *Peer) Send(ctx context.Context, el xmlstream.Marshaler) error {
	return p.Stream.Send(ctx, el)
}

// Raw flushes the stream and writes markup to the transport as is.
// It is used to send input the encoder would refuse to produce.
func (p *Peer) Raw(markup string) error {
	if err := p.Stream.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(p.rwc, markup)
	return err
}

// ReadSM returns the next element, which must be a stream management
// element.
func (p *Peer) ReadSM(ctx context.Context) (xmppstream.SM, error) {
	el, err := p.Read(ctx)
	if err != nil {
		return xmppstream.SM{}, err
	}
	sm, ok := el.(xmppstream.SM)
	if !ok {
		return xmppstream.SM{}, errors.Errorf("xmpptest: expected stream management element, got %T", el)
	}
	return sm, nil
}

// StartTLS answers a STARTTLS request and negotiates a new stream offering
// features.
// The transport is not actually encrypted.
func (p *Peer) StartTLS(ctx context.Context, features *xmppstream.Features) error {
	el, err := p.Read(ctx)
	if err != nil {
		return err
	}
	if req, ok := el.(xmppstream.StartTLS); !ok || req.Kind != xmppstream.StartTLSRequest {
		return errors.Errorf("xmpptest: expected starttls, got %#v", el)
	}
	if err = p.Send(ctx, xmppstream.StartTLS{Kind: xmppstream.StartTLSProceed}); err != nil {
		return err
	}
	if p.rwc, err = p.Stream.Detach(); err != nil {
		return err
	}
	return p.Accept(ctx, features)
}

// AuthPlain verifies a PLAIN exchange against username and password.
// On success the stream is restarted offering features.
func (p *Peer) AuthPlain(ctx context.Context, username, password string, features *xmppstream.Features) error {
	el, err := p.Read(ctx)
	if err != nil {
		return err
	}
	auth, ok := el.(xmppstream.SASL)
	if !ok || auth.Kind != xmppstream.SASLAuth || auth.Mechanism != sasl.Plain.Name {
		return errors.Errorf("xmpptest: expected PLAIN auth, got %#v", el)
	}
	negotiator := sasl.NewServer(sasl.Plain, func(n *sasl.Negotiator) bool {
		u, pass, _ := n.Credentials()
		return string(u) == username && string(pass) == password
	})
	if _, _, err = negotiator.Step(auth.Data); err != nil {
		p.log.Debug().Err(err).Msg("rejecting credentials")
		return p.Send(ctx, xmppstream.SASL{
			Kind:    xmppstream.SASLFailure,
			Failure: saslerr.Failure{Condition: saslerr.NotAuthorized},
		})
	}
	if err = p.Send(ctx, xmppstream.SASL{Kind: xmppstream.SASLSuccess}); err != nil {
		return err
	}
	return p.Restart(ctx, features)
}

// Bind answers a resource binding request, binding the requested resource to
// account.
func (p *Peer) Bind(ctx context.Context, account *jid.JID) (*jid.JID, error) {
	st, err := p.ReadStanza(ctx)
	if err != nil {
		return nil, err
	}
	iq, ok := st.(*stanza.IQ)
	if !ok || iq.Type != stanza.SetIQ {
		return nil, errors.Errorf("xmpptest: expected bind request, got %#v", st)
	}
	var req struct {
		XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
		Resource string   `xml:"resource"`
	}
	if err = xml.Unmarshal(iq.Payload, &req); err != nil {
		return nil, err
	}
	if req.Resource == "" {
		req.Resource = "generated"
	}
	bound, err := account.WithResource(req.Resource)
	if err != nil {
		return nil, err
	}
	err = p.Send(ctx, &stanza.IQ{
		ID:      iq.ID,
		Type:    stanza.ResultIQ,
		Payload: []byte(`<bind xmlns='` + ns.Bind + `'><jid>` + bound.String() + `</jid></bind>`),
	})
	return bound, err
}

// Drain reads until the client closes the stream, answering a footer with a
// footer.
func (p *Peer) Drain(ctx context.Context) error {
	for {
		_, err := p.Read(ctx)
		switch xmppstream.Outcome(err) {
		case xmppstream.OutcomeElement:
			continue
		case xmppstream.OutcomeFooter:
			return p.Stream.SendFooter()
		case xmppstream.OutcomeHard:
			return nil
		}
		return err
	}
}

// Close closes the transport.
func (p *Peer) Close() error {
	return p.rwc.Close()
}
