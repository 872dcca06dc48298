// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream

import (
	"github.com/pkg/errors"

	"mellium.im/stanzastream/internal/saslerr"
	"mellium.im/stanzastream/stream"
)

// Errors returned by the stream and its negotiation states.
var (
	// ErrSoftTimeout is returned by Read when no data arrived within the read
	// timeout. The stream remains usable.
	ErrSoftTimeout = errors.New("xmppstream: soft timeout")

	// ErrStreamFooter is returned by Read when the peer closed its side of the
	// stream with </stream:stream>.
	ErrStreamFooter = errors.New("xmppstream: stream footer received")

	// ErrConsumed is returned when a negotiation state is used more than once.
	ErrConsumed = errors.New("xmppstream: state already consumed")

	// ErrDisconnected is returned when operating on a stream or session that
	// has already been shut down.
	ErrDisconnected = errors.New("xmppstream: disconnected")

	// ErrReadPending is returned by Restart and Detach while a read is still
	// in flight or input remains buffered.
	ErrReadPending = errors.New("xmppstream: read pending")

	errUnresponsive = errors.New("peer did not respond")
)

// HardError is a failure of the underlying transport or an unresponsive peer.
// The stream must be discarded.
type HardError struct {
	Err error
}

func (e *HardError) Error() string {
	return "xmppstream: transport failure: " + e.Err.Error()
}

// Unwrap returns the transport error.
func (e *HardError) Unwrap() error { return e.Err }

// ParseError is returned when the peer sent data that could not be parsed.
// The stream is unusable afterwards and Condition should be sent to the peer.
type ParseError struct {
	Condition stream.Error
	Err       error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "xmppstream: parse error: " + e.Condition.Err
	}
	return "xmppstream: parse error: " + e.Condition.Err + ": " + e.Err.Error()
}

// Unwrap returns the underlying decoder error.
func (e *ParseError) Unwrap() error { return e.Err }

// ProtocolKind describes what went wrong during negotiation.
type ProtocolKind uint8

// A list of protocol failures.
const (
	NoTLS ProtocolKind = iota
	InvalidBindResponse
	NoStreamNamespace
	NoStreamID
	InvalidToken
	InvalidStreamStart
	PeerStreamError
)

func (k ProtocolKind) String() string {
	switch k {
	case NoTLS:
		return "TLS required but not offered"
	case InvalidBindResponse:
		return "invalid bind response"
	case NoStreamNamespace:
		return "missing or wrong stream namespace"
	case NoStreamID:
		return "missing stream id"
	case InvalidToken:
		return "unexpected element"
	case InvalidStreamStart:
		return "invalid stream start"
	case PeerStreamError:
		return "stream error from peer"
	}
	return "unknown protocol error"
}

// ProtocolError is returned when the peer violated the negotiation protocol.
type ProtocolError struct {
	Kind ProtocolKind
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "xmppstream: " + e.Kind.String()
	}
	return "xmppstream: " + e.Kind.String() + ": " + e.Err.Error()
}

// Unwrap returns the wrapped error, if any.
func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthKind describes an authentication failure.
type AuthKind uint8

// A list of authentication failures.
const (
	// NoMechanism means no mechanism offered by the server is usable.
	NoMechanism AuthKind = iota
	// SASLEngine means the SASL engine itself reported an error.
	SASLEngine
	// Fail means the server rejected the credentials.
	Fail
	// ComponentFail means the component handshake was rejected.
	ComponentFail
)

func (k AuthKind) String() string {
	switch k {
	case NoMechanism:
		return "no usable mechanism"
	case SASLEngine:
		return "sasl"
	case Fail:
		return "authentication failed"
	case ComponentFail:
		return "component handshake failed"
	}
	return "unknown authentication error"
}

// AuthError is returned when authentication fails.
type AuthError struct {
	Kind      AuthKind
	Condition saslerr.Condition
	Err       error
}

func (e *AuthError) Error() string {
	msg := "xmppstream: " + e.Kind.String()
	if e.Condition != "" {
		msg += " (" + string(e.Condition) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped error, if any.
func (e *AuthError) Unwrap() error { return e.Err }

// ReadOutcome classifies the error returned by Read.
type ReadOutcome uint8

// A list of read outcomes.
const (
	OutcomeElement ReadOutcome = iota
	OutcomeSoftTimeout
	OutcomeHard
	OutcomeParse
	OutcomeFooter
	OutcomeOther
)

// Outcome classifies err.
// A nil error means an element was read.
func Outcome(err error) ReadOutcome {
	var (
		hard  *HardError
		parse *ParseError
	)
	switch {
	case err == nil:
		return OutcomeElement
	case errors.Is(err, ErrSoftTimeout):
		return OutcomeSoftTimeout
	case errors.Is(err, ErrStreamFooter):
		return OutcomeFooter
	case errors.As(err, &hard):
		return OutcomeHard
	case errors.As(err, &parse):
		return OutcomeParse
	}
	return OutcomeOther
}

// Terminal reports whether err ends the stream.
func Terminal(err error) bool {
	switch Outcome(err) {
	case OutcomeHard, OutcomeParse, OutcomeFooter:
		return true
	}
	return false
}
