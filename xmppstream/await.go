// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Await reads from s until match accepts an element or returns an error.
//
// Soft timeouts are absorbed and elements that match rejects are discarded.
// A stream error sent by the peer ends the wait with a *ProtocolError.
// Terminal read outcomes are returned unchanged.
func Await(ctx context.Context, s *Stream[Element], match func(Element) (bool, error)) (Element, error) {
	for {
		el, err := s.Read(ctx)
		switch {
		case errors.Is(err, ErrSoftTimeout):
			continue
		case err != nil:
			return nil, err
		}
		if se, ok := el.(StreamError); ok {
			return nil, &ProtocolError{Kind: PeerStreamError, Err: se.Error}
		}
		ok, err := match(el)
		if err != nil {
			return nil, err
		}
		if ok {
			return el, nil
		}
		s.s.opts.log.Debug().Type("element", el).Msg("discarding unrelated element")
	}
}

// Logger returns the logger the stream was configured with.
func (s *Stream[T]) Logger() zerolog.Logger {
	return s.s.opts.log
}
