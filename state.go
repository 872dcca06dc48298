// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanzastream

import (
	"strconv"
)

// State is the lifecycle state of a StanzaStream.
type State uint32

// A list of lifecycle states.
//
// A stream starts out Connecting, passes through Negotiating, Authenticated
// and Bound on every successful connection attempt and is Live while stanzas
// flow.
// After a lost connection it is Reconnecting until the next attempt succeeds.
// Close moves it to Closing and finally Disconnected.
const (
	Disconnected State = iota
	Connecting
	Negotiating
	Authenticated
	Bound
	Live
	Reconnecting
	Closing
)

var stateNames = [...]string{
	"disconnected",
	"connecting",
	"negotiating",
	"authenticated",
	"bound",
	"live",
	"reconnecting",
	"closing",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}
