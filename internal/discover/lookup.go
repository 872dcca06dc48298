// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package discover is used to look up the address of XMPP services.
package discover // import "mellium.im/stanzastream/internal/discover"

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// Services that can be looked up.
const (
	Client    = "xmpp-client"
	ClientTLS = "xmpps-client"
	Server    = "xmpp-server"
	ServerTLS = "xmpps-server"
)

// Default ports from RFC 6120 and XEP-0368.
const (
	clientPort    = 5222
	clientTLSPort = 5223
	serverPort    = 5269
	serverTLSPort = 5270
)

// Errors returned by this package.
var (
	ErrInvalidService = errors.New("discover: service must be one of xmpp[s]-client or xmpp[s]-server")
	ErrNoService      = errors.New("discover: service is decidedly not available at this domain")
)

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

// FallbackRecords returns fake SRV records based on the service that can be
// used if no actual SRV records can be found but we believe that an XMPP
// service exists at the given domain.
func FallbackRecords(service, domain string) []*net.SRV {
	var port uint16
	switch service {
	case Client:
		port = clientPort
	case ClientTLS:
		port = clientTLSPort
	case Server:
		port = serverPort
	case ServerTLS:
		port = serverTLSPort
	default:
		return nil
	}
	return []*net.SRV{{Target: domain, Port: port}}
}

// LookupService looks for an XMPP service hosted by domain.
// It returns the addresses from SRV records or, if there are none, the
// fallback record for the service.
// If the only record has the target "." ErrNoService is returned.
func LookupService(ctx context.Context, resolver *net.Resolver, service, domain string) ([]*net.SRV, error) {
	switch service {
	case Client, ClientTLS, Server, ServerTLS:
	default:
		return nil, ErrInvalidService
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	_, addrs, err := resolver.LookupSRV(ctx, service, "tcp", domain)
	switch {
	case err != nil && isNotFound(err):
		return FallbackRecords(service, domain), nil
	case err != nil:
		return nil, errors.Wrapf(err, "discover: looking up %s for %s", service, domain)
	}

	// RFC 6120 §3.2.1: a single record with the target "." means the service
	// is decidedly not available at this domain.
	if len(addrs) == 1 && addrs[0].Target == "." {
		return nil, ErrNoService
	}
	if len(addrs) == 0 {
		return FallbackRecords(service, domain), nil
	}
	return addrs, nil
}
