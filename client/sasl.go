// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/pkg/errors"
	"mellium.im/sasl"

	"mellium.im/stanzastream/xmppstream"
)

// selectMechanism picks the first mechanism in our preference order that the
// server offers.
func selectMechanism(ours []sasl.Mechanism, theirs []string, secure, allowInsecure, cb bool) (sasl.Mechanism, bool) {
	for _, m := range ours {
		if strings.HasSuffix(m.Name, "-PLUS") && !cb {
			continue
		}
		if m.Name == sasl.Plain.Name && !secure && !allowInsecure {
			continue
		}
		for _, name := range theirs {
			if strings.TrimSpace(name) == m.Name {
				return m, true
			}
		}
	}
	return sasl.Mechanism{}, false
}

// authenticate runs the SASL exchange.
// It returns once the server reported success.
func authenticate(ctx context.Context, s *xmppstream.Stream[xmppstream.Element], features xmppstream.Features, cfg Config, secure bool, state *tls.ConnectionState) error {
	mech, ok := selectMechanism(cfg.mechanisms(), features.Mechanisms, secure, cfg.AllowInsecure, state != nil)
	if !ok {
		return &xmppstream.AuthError{
			Kind: xmppstream.NoMechanism,
			Err:  errors.Errorf("server offered %v", features.Mechanisms),
		}
	}
	log := s.Logger()
	log.Debug().Str("mechanism", mech.Name).Msg("authenticating")

	opts := []sasl.Option{
		sasl.RemoteMechanisms(features.Mechanisms...),
		sasl.Credentials(func() (username, password, identity []byte) {
			return []byte(cfg.JID.Localpart()), []byte(cfg.Password), nil
		}),
	}
	if state != nil {
		opts = append(opts, sasl.TLSState(*state))
	}
	negotiator := sasl.NewClient(mech, opts...)

	more, resp, err := negotiator.Step(nil)
	if err != nil {
		return &xmppstream.AuthError{Kind: xmppstream.SASLEngine, Err: err}
	}
	if resp == nil {
		resp = []byte{}
	}
	err = s.Send(ctx, xmppstream.SASL{Kind: xmppstream.SASLAuth, Mechanism: mech.Name, Data: resp})
	if err != nil {
		return err
	}

	for {
		el, err := xmppstream.Await(ctx, s, func(el xmppstream.Element) (bool, error) {
			v, ok := el.(xmppstream.SASL)
			if !ok {
				return false, nil
			}
			switch v.Kind {
			case xmppstream.SASLChallenge, xmppstream.SASLSuccess, xmppstream.SASLFailure:
				return true, nil
			}
			return false, nil
		})
		if err != nil {
			return err
		}
		v := el.(xmppstream.SASL)
		switch v.Kind {
		case xmppstream.SASLFailure:
			return &xmppstream.AuthError{
				Kind:      xmppstream.Fail,
				Condition: v.Failure.Condition,
				Err:       v.Failure,
			}
		case xmppstream.SASLSuccess:
			// Additional data with success must still be verified.
			if more && len(v.Data) > 0 {
				if _, _, err = negotiator.Step(v.Data); err != nil {
					return &xmppstream.AuthError{Kind: xmppstream.SASLEngine, Err: err}
				}
			}
			log.Debug().Str("mechanism", mech.Name).Msg("authenticated")
			return nil
		}

		more, resp, err = negotiator.Step(v.Data)
		if err != nil {
			_ = s.Send(ctx, xmppstream.SASL{Kind: xmppstream.SASLAbort})
			return &xmppstream.AuthError{Kind: xmppstream.SASLEngine, Err: err}
		}
		if err = s.Send(ctx, xmppstream.SASL{Kind: xmppstream.SASLResponse, Data: resp}); err != nil {
			return err
		}
	}
}
