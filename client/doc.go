// Copyright 2014 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package client sets up client-to-server streams.
//
// Login negotiates a stream, upgrades it with STARTTLS when the server offers
// it, authenticates with SASL and restarts the stream.
// Bind binds a resource on an authenticated stream and Connect does both.
package client // import "mellium.im/stanzastream/client"
