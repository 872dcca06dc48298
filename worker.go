// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"mellium.im/xmlstream"

	"mellium.im/stanzastream/client"
	"mellium.im/stanzastream/jid"
	"mellium.im/stanzastream/ping"
	"mellium.im/stanzastream/stanza"
	"mellium.im/stanzastream/stream"
	"mellium.im/stanzastream/xmppstream"
)

// ProbePrefix is the ID prefix of the pings sent when the connection has been
// quiet for the soft timeout and stream management is not enabled.
// Replies to them are not delivered as events.
const ProbePrefix = "stanzastream-liveness-probe-"

// worker owns the queue and the stream management state.
// Everything except the StanzaStream fields it touches through methods is
// confined to the goroutine running run.
type worker struct {
	s         *StanzaStream
	log       zerolog.Logger
	connector Connector
	addr      *jid.JID
	cfg       Config

	queue   transmitQueue
	seq     uint64
	iqs     iqTracker
	sm      *smState
	ctrl    []xmlstream.Marshaler
	pending []Event
	probe   uint64
	backoff *backoff
}

func newWorker(s *StanzaStream, connector Connector, addr *jid.JID, cfg Config) *worker {
	return &worker{
		s:         s,
		log:       s.log,
		connector: connector,
		addr:      addr,
		cfg:       cfg,
		/* #nosec */
		probe:   uint64(rand.Uint32()),
		backoff: newBackoff(cfg.Backoff),
	}
}

// action is what the worker does after handling a read.
type action uint8

const (
	keep action = iota
	reconnect
	stop
)

type readResult struct {
	el  xmppstream.Element
	err error
}

// outbound is handed to the writer goroutine.
// If footer is set el is ignored and the stream is closed.
type outbound struct {
	el     xmlstream.Marshaler
	footer bool
}

func (w *worker) run() {
	defer w.finish()
	first := true
	for {
		conn := w.acquire(first)
		if conn == nil {
			return
		}
		first = false
		if !w.live(conn) {
			return
		}
	}
}

// outstanding is the number of stanzas counted against the queue capacity.
func (w *worker) outstanding() int {
	n := w.queue.len()
	if w.sm != nil {
		n += len(w.sm.unacked)
	}
	return n
}

// submissions returns the submission channel while there is room in the
// queue and nil otherwise, which blocks senders.
func (w *worker) submissions() <-chan *entry {
	if w.outstanding() < w.cfg.QueueCapacity {
		return w.s.submit
	}
	return nil
}

// nextEvent returns the events channel and the event to deliver, or a nil
// channel if nothing is pending.
func (w *worker) nextEvent() (chan<- Event, Event) {
	if len(w.pending) == 0 {
		return nil, nil
	}
	return w.s.events, w.pending[0]
}

func (w *worker) delivered() {
	w.pending[0] = nil
	w.pending = w.pending[1:]
}

func (w *worker) emit(ev Event) {
	w.pending = append(w.pending, ev)
}

func (w *worker) enqueue(e *entry) {
	w.seq++
	e.seq = w.seq
	if e.iq != nil {
		if err := w.iqs.track(e); err != nil {
			w.log.Warn().Err(err).Uint64("seq", e.seq).Msg("not sending IQ")
			e.token.set(Failed, err)
			e.iq.reply <- iqResponse{err: err}
			return
		}
	}
	w.queue.push(e)
	w.log.Debug().Uint64("seq", e.seq).Int("queued", w.queue.len()).Msg("stanza queued")
}

// attempt is the result of one connection attempt.
type attempt struct {
	conn  *Connection
	bound *jid.JID

	// At most one of these is set.
	enabled *xmppstream.SM
	resumed *xmppstream.SM
	failed  *xmppstream.SM

	early []stanza.Stanza
	err   error
}

// resumption is the part of the stream management state a connection attempt
// needs, copied so that the attempt can run beside the worker.
type resumption struct {
	id string
	h  uint32
}

func (w *worker) resumption() *resumption {
	if w.sm == nil || !w.sm.resumable {
		return nil
	}
	return &resumption{id: w.sm.id, h: w.sm.inbound}
}

// acquire connects until it succeeds or the stream is closed, in which case
// it returns nil.
// Submissions are accepted and events delivered while connecting.
func (w *worker) acquire(first bool) *Connection {
	if first {
		w.s.setState(Connecting)
	} else {
		w.s.setState(Reconnecting)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan attempt, 1)
	start := func() {
		go func(addr *jid.JID, resume *resumption) {
			results <- w.negotiate(ctx, addr, resume)
		}(w.addr, w.resumption())
	}
	start()
	running := true

	var (
		timer *time.Timer
		retry <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		events, ev := w.nextEvent()
		select {
		case e := <-w.submissions():
			w.enqueue(e)
		case events <- ev:
			w.delivered()
		case r := <-results:
			running = false
			if r.err == nil && w.apply(r) {
				w.backoff.reset()
				return r.conn
			}
			if r.err != nil {
				var parse *xmppstream.ParseError
				if errors.As(r.err, &parse) {
					w.log.Error().Err(r.err).Msg("invalid XML from server while connecting, ending the session")
					w.s.setErr(r.err)
					return nil
				}
				w.attemptFailed(r.err)
			}
			w.s.setState(Reconnecting)
			delay := w.backoff.next()
			w.log.Info().Dur("delay", delay).Msg("retrying connection")
			timer = time.NewTimer(delay)
			retry = timer.C
		case <-retry:
			retry = nil
			w.s.setState(Reconnecting)
			start()
			running = true
		case <-w.s.closing:
			cancel()
			if running {
				if r := <-results; r.err == nil {
					closeStream(r.conn.Stream, nil, w.log)
				}
			}
			return nil
		}
	}
}

// attemptFailed logs a failed connection attempt.
// A stream error from the server while negotiating means it rejected us, so
// queued stanzas fail instead of waiting for a session that may never come.
func (w *worker) attemptFailed(err error) {
	var perr *xmppstream.ProtocolError
	if errors.As(err, &perr) && perr.Kind == xmppstream.PeerStreamError {
		w.log.Warn().Err(err).Msg("server rejected the stream, failing queued stanzas")
		w.queue.finish(Failed, err)
		if w.sm != nil {
			for _, e := range w.sm.take() {
				e.token.set(Failed, err)
			}
			w.sm = nil
		}
		w.iqs.fail(err)
		return
	}
	w.log.Warn().Err(err).Msg("connection attempt failed")
}

// negotiate connects, then resumes the previous session or binds a resource
// and enables stream management.
// It runs on its own goroutine and only reads immutable worker fields.
func (w *worker) negotiate(ctx context.Context, addr *jid.JID, resume *resumption) (r attempt) {
	w.s.setState(Negotiating)
	conn, err := w.connector.Connect(ctx, addr, xmppstream.WithLogger(w.log), xmppstream.WithTimeouts(w.cfg.Timeouts))
	if err != nil {
		r.err = err
		return r
	}
	r.conn = conn
	defer func() {
		if r.err != nil {
			closeStream(conn.Stream, condition(r.err), w.log)
			r.conn = nil
		}
	}()
	w.s.setState(Authenticated)
	s := conn.Stream

	if resume != nil && conn.Features.SM {
		err = s.Send(ctx, xmppstream.SM{Kind: xmppstream.SMResume, H: resume.h, PrevID: resume.id})
		if err != nil {
			r.err = err
			return r
		}
		sm, err := awaitSM(ctx, s, nil, xmppstream.SMResumed, xmppstream.SMFailed)
		if err != nil {
			r.err = err
			return r
		}
		if sm.Kind == xmppstream.SMResumed {
			r.resumed = &sm
			r.bound = addr
			w.s.setState(Bound)
			return r
		}
		w.log.Info().Str("condition", sm.Condition).Msg("session could not be resumed")
		r.failed = &sm
	}

	r.bound = conn.JID
	if r.bound == nil {
		r.bound = addr
	}
	if conn.Features.Bind {
		resource := addr.Resourcepart()
		if resource == "" {
			resource = w.cfg.Resource
		}
		r.bound, err = client.Bind(ctx, s, resource)
		if err != nil {
			r.err = err
			return r
		}
	}
	w.s.setState(Bound)

	if conn.Features.SM {
		err = s.Send(ctx, xmppstream.SM{Kind: xmppstream.SMEnable, Resume: true})
		if err != nil {
			r.err = err
			return r
		}
		collect := func(el xmppstream.Element) {
			if st, ok := el.(xmppstream.Stanza); ok {
				r.early = append(r.early, st.Stanza)
			}
		}
		sm, err := awaitSM(ctx, s, collect, xmppstream.SMEnabled, xmppstream.SMFailed)
		if err != nil {
			r.err = err
			return r
		}
		if sm.Kind == xmppstream.SMEnabled {
			r.enabled = &sm
		} else {
			w.log.Warn().Str("condition", sm.Condition).Msg("stream management not enabled")
		}
	}
	return r
}

// condition returns the stream error to report before giving up on a stream
// after err, or nil to just send a footer.
func condition(err error) *stream.Error {
	var (
		parse *xmppstream.ParseError
		proto *xmppstream.ProtocolError
	)
	switch {
	case errors.As(err, &parse):
		return &parse.Condition
	case errors.As(err, &proto) && proto.Kind == xmppstream.InvalidBindResponse:
		cond := stream.UndefinedCondition.WithText(proto.Error())
		return &cond
	}
	return nil
}

// awaitSM reads until a stream management element of one of kinds arrives.
// Other elements are passed to collect, if it is not nil, and dropped.
func awaitSM(ctx context.Context, s *xmppstream.Stream[xmppstream.Element], collect func(xmppstream.Element), kinds ...xmppstream.SMKind) (xmppstream.SM, error) {
	el, err := xmppstream.Await(ctx, s, func(el xmppstream.Element) (bool, error) {
		if sm, ok := el.(xmppstream.SM); ok {
			for _, k := range kinds {
				if sm.Kind == k {
					return true, nil
				}
			}
			return false, nil
		}
		if collect != nil {
			collect(el)
		}
		return false, nil
	})
	if err != nil {
		return xmppstream.SM{}, err
	}
	return el.(xmppstream.SM), nil
}

// apply moves the worker onto a negotiated connection.
// It returns false if the connection had to be abandoned.
func (w *worker) apply(r attempt) bool {
	if r.resumed != nil {
		entries, err := w.sm.resume(r.resumed.H)
		if err != nil {
			w.log.Error().Err(err).Msg("invalid counter in resumed, starting a new session")
			closeStream(r.conn.Stream, ackCondition(err), w.log)
			w.queue.requeue(w.sm.take())
			w.sm = nil
			return false
		}
		w.queue.requeue(entries)
		w.sm.pendingReq = false
		w.log.Info().Int("resending", len(entries)).Msg("session resumed")
		w.emit(Resumed{})
		return true
	}

	if w.sm != nil {
		if r.failed != nil && r.failed.HasH {
			if err := w.sm.acked(r.failed.H); err != nil {
				w.log.Debug().Err(err).Msg("ignoring counter in failed")
			}
		}
		w.queue.requeue(w.sm.take())
		w.sm = nil
	}
	if r.enabled != nil {
		w.sm = newSMState(*r.enabled)
		w.log.Debug().Bool("resumable", w.sm.resumable).Msg("stream management enabled")
	}
	if n := w.iqs.reset(&w.queue); n > 0 {
		w.log.Info().Int("requests", n).Msg("IQ responses lost with the previous session")
	}
	w.addr = r.bound
	w.emit(Reset{JID: r.bound, Features: r.conn.Features})
	for _, st := range r.early {
		w.emit(Stanza{Stanza: st})
	}
	return true
}

func ackCondition(err error) *stream.Error {
	var aerr *AckError
	if !errors.As(err, &aerr) {
		return nil
	}
	cond := aerr.streamError()
	return &cond
}

// live runs a bound connection until it is lost or the stream ends.
// It reports whether to reconnect.
func (w *worker) live(conn *Connection) bool {
	s := conn.Stream
	w.s.setState(Live)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reads := make(chan readResult)
	out := make(chan outbound)
	writeErrs := make(chan error, 1)
	go read(ctx, s, reads)
	go write(ctx, s, out, writeErrs)
	w.ctrl = nil

	for {
		outCh, next, fromQueue := w.next(out)
		var readCh <-chan readResult
		if len(w.pending) < w.cfg.QueueCapacity {
			readCh = reads
		}
		events, ev := w.nextEvent()
		select {
		case outCh <- next:
			w.sent(fromQueue)
		case r := <-readCh:
			switch w.handle(s, r) {
			case reconnect:
				w.emit(Suspended{})
				return true
			case stop:
				return false
			}
		case err := <-writeErrs:
			w.log.Warn().Err(err).Msg("write failed, reconnecting")
			/* #nosec */
			s.Close()
			w.emit(Suspended{})
			return true
		case e := <-w.submissions():
			w.enqueue(e)
		case events <- ev:
			w.delivered()
		case <-w.s.closing:
			w.shutdown(s, reads, out, writeErrs)
			return false
		}
	}
}

// next returns what to write next.
// Control elements go before queued stanzas.
func (w *worker) next(out chan outbound) (chan<- outbound, outbound, bool) {
	if len(w.ctrl) > 0 {
		return out, outbound{el: w.ctrl[0]}, false
	}
	if e := w.queue.front(); e != nil {
		return out, outbound{el: e.stanza}, true
	}
	return nil, outbound{}, false
}

// sent records that the element returned by next was handed to the writer.
func (w *worker) sent(fromQueue bool) {
	if !fromQueue {
		w.ctrl[0] = nil
		w.ctrl = w.ctrl[1:]
		return
	}
	e := w.queue.pop()
	e.token.set(Sent, nil)
	w.log.Trace().Uint64("seq", e.seq).Msg("stanza sent")
	if w.sm == nil {
		return
	}
	w.sm.sent(e)
	if w.queue.len() == 0 {
		w.requestAck()
	}
}

// requestAck queues an <r/> unless one is outstanding.
// It reports whether stream management is enabled.
func (w *worker) requestAck() bool {
	if w.sm == nil {
		return false
	}
	if !w.sm.pendingReq {
		w.sm.pendingReq = true
		w.ctrl = append(w.ctrl, xmppstream.SM{Kind: xmppstream.SMRequest})
	}
	return true
}

// probeLiveness makes the server send something so that a dead connection
// turns into a hard error.
func (w *worker) probeLiveness() {
	if w.requestAck() {
		w.log.Debug().Msg("connection quiet, requesting ack")
		return
	}
	w.probe++
	w.log.Debug().Msg("connection quiet, sending ping")
	w.ctrl = append(w.ctrl, ping.Request(ProbePrefix+strconv.FormatUint(w.probe, 10), nil))
}

func (w *worker) handle(s *xmppstream.Stream[xmppstream.Element], r readResult) action {
	switch xmppstream.Outcome(r.err) {
	case xmppstream.OutcomeElement:
		return w.handleElement(s, r.el)
	case xmppstream.OutcomeSoftTimeout:
		w.probeLiveness()
		return keep
	case xmppstream.OutcomeFooter:
		w.log.Info().Msg("server closed the stream, reconnecting")
		closeStream(s, nil, w.log)
		return reconnect
	case xmppstream.OutcomeParse:
		w.log.Error().Err(r.err).Msg("invalid XML from server, ending the session")
		closeStream(s, condition(r.err), w.log)
		w.s.setErr(r.err)
		return stop
	}
	w.log.Warn().Err(r.err).Msg("connection lost, reconnecting")
	/* #nosec */
	s.Close()
	return reconnect
}

func (w *worker) handleElement(s *xmppstream.Stream[xmppstream.Element], el xmppstream.Element) action {
	switch v := el.(type) {
	case xmppstream.Stanza:
		if w.sm != nil {
			w.sm.inbound++
		}
		if ping.IsReply(v.Stanza, ProbePrefix) {
			w.log.Debug().Msg("received ping reply")
			return keep
		}
		if iq, ok := v.Stanza.(*stanza.IQ); ok && w.iqs.match(iq, w.addr) {
			w.log.Debug().Str("id", iq.ID).Msg("received IQ response")
			return keep
		}
		w.emit(Stanza{Stanza: v.Stanza})
	case xmppstream.SM:
		return w.handleSM(s, v)
	case xmppstream.StreamError:
		w.log.Warn().Err(v.Error).Msg("server sent a stream error, reconnecting")
		/* #nosec */
		s.Close()
		return reconnect
	default:
		w.log.Debug().Type("element", el).Msg("ignoring element")
	}
	return keep
}

func (w *worker) handleSM(s *xmppstream.Stream[xmppstream.Element], v xmppstream.SM) action {
	if w.sm == nil {
		w.log.Debug().Stringer("element", v.Kind).Msg("ignoring stream management element")
		return keep
	}
	switch v.Kind {
	case xmppstream.SMRequest:
		w.ctrl = append(w.ctrl, xmppstream.SM{Kind: xmppstream.SMAnswer, H: w.sm.inbound})
	case xmppstream.SMAnswer:
		w.sm.pendingReq = false
		if err := w.sm.acked(v.H); err != nil {
			w.log.Error().Err(err).Msg("invalid ack, reconnecting")
			closeStream(s, ackCondition(err), w.log)
			w.queue.requeue(w.sm.take())
			w.sm = nil
			return reconnect
		}
	default:
		w.log.Debug().Stringer("element", v.Kind).Msg("ignoring stream management element")
	}
	return keep
}

// shutdown writes what is queued until the shutdown timeout, closes our side
// of the stream and waits briefly for the server to close its side.
func (w *worker) shutdown(s *xmppstream.Stream[xmppstream.Element], reads <-chan readResult, out chan outbound, writeErrs <-chan error) {
	w.s.setState(Closing)
	defer func() {
		/* #nosec */
		s.Close()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
	defer cancel()

	for {
		outCh, next, fromQueue := w.next(out)
		if outCh == nil {
			break
		}
		select {
		case outCh <- next:
			w.sent(fromQueue)
		case r := <-reads:
			if w.handle(s, r) != keep {
				return
			}
		case err := <-writeErrs:
			w.log.Debug().Err(err).Msg("write failed while closing")
			return
		case <-ctx.Done():
			w.log.Warn().Int("queued", w.queue.len()).Msg("shutdown timeout elapsed")
			return
		}
	}

	select {
	case out <- outbound{footer: true}:
	case err := <-writeErrs:
		w.log.Debug().Err(err).Msg("write failed while closing")
		return
	case <-ctx.Done():
		w.log.Warn().Msg("shutdown timeout elapsed")
		return
	}

	wait := time.NewTimer(remoteShutdownTimeout)
	defer wait.Stop()
	for {
		select {
		case r := <-reads:
			if r.err == nil || errors.Is(r.err, xmppstream.ErrSoftTimeout) {
				continue
			}
			return
		case err := <-writeErrs:
			w.log.Debug().Err(err).Msg("write failed while closing")
			return
		case <-wait.C:
			w.log.Debug().Msg("server did not close the stream")
			return
		}
	}
}

// finish settles whatever is left once the stream has ended.
func (w *worker) finish() {
	if err := w.s.Err(); err != nil {
		w.queue.finish(Failed, err)
		if w.sm != nil {
			for _, e := range w.sm.take() {
				e.token.set(Failed, err)
			}
		}
		w.iqs.fail(err)
	} else {
		w.queue.finish(Dropped, ErrDisconnected)
		w.iqs.fail(ErrDisconnected)
	}
	w.s.setState(Disconnected)
	var dropped int
	for _, ev := range w.pending {
		select {
		case w.s.events <- ev:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		w.log.Warn().Int("dropped", dropped).Msg("event buffer full, dropping undelivered events")
	}
	w.pending = nil
	close(w.s.events)
	close(w.s.done)
}

func read(ctx context.Context, s *xmppstream.Stream[xmppstream.Element], reads chan<- readResult) {
	for {
		el, err := s.Read(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case reads <- readResult{el: el, err: err}:
		case <-ctx.Done():
			return
		}
		if xmppstream.Terminal(err) {
			return
		}
	}
}

// write encodes elements from out, flushing once no more are ready.
// It stops after the first error or the footer.
func write(ctx context.Context, s *xmppstream.Stream[xmppstream.Element], out <-chan outbound, errs chan<- error) {
	for {
		var o outbound
		select {
		case o = <-out:
		case <-ctx.Done():
			return
		}
		for {
			if o.footer {
				if err := s.SendFooter(); err != nil {
					errs <- err
				}
				return
			}
			if err := s.Write(ctx, o.el); err != nil {
				errs <- err
				return
			}
			more := false
			select {
			case o = <-out:
				more = true
			default:
			}
			if !more {
				break
			}
		}
		if err := s.Flush(); err != nil {
			errs <- err
			return
		}
	}
}

// closeStream ends s in the background, reporting cond first if it is not
// nil.
func closeStream(s *xmppstream.Stream[xmppstream.Element], cond *stream.Error, log zerolog.Logger) {
	go func() {
		done := make(chan error, 1)
		go func() {
			if cond != nil {
				done <- s.SendError(*cond)
				return
			}
			done <- s.SendFooter()
		}()
		timer := time.NewTimer(remoteShutdownTimeout)
		defer timer.Stop()
		select {
		case err := <-done:
			if err != nil {
				log.Debug().Err(err).Msg("closing stream")
			}
		case <-timer.C:
			log.Debug().Msg("timed out closing stream")
		}
		/* #nosec */
		s.Close()
	}()
}
