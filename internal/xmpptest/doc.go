// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmpptest provides an in-memory, scripted XMPP server for tests.
package xmpptest // import "mellium.im/stanzastream/internal/xmpptest"
