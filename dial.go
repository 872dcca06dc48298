// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"

	"github.com/pkg/errors"

	"mellium.im/stanzastream/internal/discover"
	"mellium.im/stanzastream/jid"
)

// A Dialer contains options for connecting to an XMPP address.
// After a connection is established Dial does not attempt to negotiate a
// stream on it.
//
// The zero value for each field is equivalent to dialing without that option.
type Dialer struct {
	net.Dialer

	// Resolver allows you to change options related to resolving DNS.
	Resolver *net.Resolver

	// NoLookup stops the dialer from looking up SRV records for the domain.
	// Instead, it will try to connect to the domain on the default port.
	NoLookup bool

	// Addr is dialed instead of discovering the server.
	// Component connections always need it.
	Addr string

	// TLSConfig enables implicit TLS.
	// Without it the connection is plain and is expected to be upgraded with
	// STARTTLS.
	TLSConfig *tls.Config
}

// Dial discovers and connects to the server for addr on the named network.
// It tries every SRV record in order, returning the first connection that
// succeeds.
func (d *Dialer) Dial(ctx context.Context, network string, addr *jid.JID) (net.Conn, error) {
	if d.Addr != "" {
		return d.dialOne(ctx, network, d.Addr, addr.Domainpart())
	}
	domain := addr.Domainpart()
	service := discover.Client
	if d.TLSConfig != nil {
		service = discover.ClientTLS
	}
	var addrs []*net.SRV
	if d.NoLookup {
		addrs = discover.FallbackRecords(service, domain)
	} else {
		var err error
		addrs, err = discover.LookupService(ctx, d.Resolver, service, domain)
		if err != nil {
			return nil, err
		}
	}

	err := errors.Errorf("stanzastream: no address found for %s", domain)
	for _, srv := range addrs {
		hostport := net.JoinHostPort(srv.Target, strconv.FormatUint(uint64(srv.Port), 10))
		conn, e := d.dialOne(ctx, network, hostport, domain)
		if e != nil {
			err = e
			continue
		}
		return conn, nil
	}
	return nil, err
}

func (d *Dialer) dialOne(ctx context.Context, network, hostport, domain string) (net.Conn, error) {
	if d.TLSConfig == nil {
		conn, err := d.Dialer.DialContext(ctx, network, hostport)
		return conn, errors.Wrapf(err, "stanzastream: dialing %s", hostport)
	}
	cfg := d.TLSConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = domain
	}
	td := tls.Dialer{NetDialer: &d.Dialer, Config: cfg}
	conn, err := td.DialContext(ctx, network, hostport)
	return conn, errors.Wrapf(err, "stanzastream: dialing %s", hostport)
}
