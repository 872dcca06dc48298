// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/stanza"
	"mellium.im/stanzastream/xmppstream"
)

// ErrDisconnected is returned once the StanzaStream has ended.
var ErrDisconnected = xmppstream.ErrDisconnected

// Option configures a StanzaStream.
type Option func(*StanzaStream)

// WithLogger sets the logger.
// The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *StanzaStream) {
		s.log = log
	}
}

// StanzaStream is a reliable stream of stanzas that survives lost
// connections.
// Its methods are safe for concurrent use.
type StanzaStream struct {
	log zerolog.Logger

	submit    chan *entry
	events    chan Event
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	state atomic.Uint32

	mu  sync.Mutex
	err error
}

// New starts a StanzaStream for addr.
// The first connection attempt is made right away in the background.
//
// If addr has a resourcepart it is requested when binding, otherwise
// cfg.Resource is.
func New(connector Connector, addr *jid.JID, cfg Config, opts ...Option) *StanzaStream {
	cfg = cfg.withDefaults()
	s := &StanzaStream{
		log:     zerolog.Nop(),
		submit:  make(chan *entry),
		events:  make(chan Event, cfg.QueueCapacity),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(uint32(Connecting))
	w := newWorker(s, connector, addr, cfg)
	go w.run()
	return s
}

// Send queues st for delivery.
// It blocks while the queue is full and fails with ErrDisconnected once the
// stream is closing or has ended.
// A stanza without an ID is assigned a random one.
func (s *StanzaStream) Send(ctx context.Context, st stanza.Stanza) error {
	return s.enqueue(ctx, &entry{stanza: withID(st)})
}

// SendWithToken is like Send but returns a token that tracks delivery.
func (s *StanzaStream) SendWithToken(ctx context.Context, st stanza.Stanza) (*Token, error) {
	e := &entry{stanza: withID(st), token: newToken()}
	if err := s.enqueue(ctx, e); err != nil {
		return nil, err
	}
	return e.token, nil
}

func (s *StanzaStream) enqueue(ctx context.Context, e *entry) error {
	select {
	case <-s.closing:
		return ErrDisconnected
	case <-s.done:
		return ErrDisconnected
	default:
	}
	select {
	case s.submit <- e:
		return nil
	case <-s.closing:
		return ErrDisconnected
	case <-s.done:
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withID(st stanza.Stanza) stanza.Stanza {
	switch v := st.(type) {
	case *stanza.IQ:
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
	case *stanza.Message:
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
	case *stanza.Presence:
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
	}
	return st
}

// Next returns the next event.
// Once the stream has ended it returns the error that ended it, or
// ErrDisconnected after Close.
func (s *StanzaStream) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return nil, s.endErr()
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Events returns the channel events are delivered on.
// It is closed when the stream ends.
// Events and Next consume the same events.
func (s *StanzaStream) Events() <-chan Event {
	return s.events
}

// Close sends queued stanzas for up to the configured shutdown timeout,
// closes the stream and stops reconnecting.
// It waits until the stream has ended or ctx is done.
func (s *StanzaStream) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed when the stream has ended.
func (s *StanzaStream) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *StanzaStream) State() State {
	return State(s.state.Load())
}

// Err returns the error that ended the stream, if any.
// It is nil while the stream is running and after a clean Close.
func (s *StanzaStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *StanzaStream) endErr() error {
	if err := s.Err(); err != nil {
		return err
	}
	return ErrDisconnected
}

func (s *StanzaStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *StanzaStream) setState(state State) {
	if old := State(s.state.Swap(uint32(state))); old != state {
		s.log.Info().Stringer("from", old).Stringer("to", state).Msg("state changed")
	}
}
