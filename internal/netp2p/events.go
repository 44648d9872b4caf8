// Copyright 2025 Certen Protocol
//
// Events surfaced to consumers and commands accepted from them, modeled
// as two unidirectional channels: neither the network layer nor its
// consumer owns the other, each owns only its endpoint.

package netp2p

import (
	"github.com/libp2p/go-libp2p/core/peer"
)

// EventKind discriminates the four network event variants.
type EventKind uint8

const (
	EventPeerConnected EventKind = iota
	EventPeerDisconnected
	EventMessageReceived
	EventGossipReceived
)

// Event is surfaced on the Host's event channel.
type Event struct {
	Kind EventKind
	Peer peer.ID
	Topic Topic // set only for EventGossipReceived
	Msg Envelope // set for EventMessageReceived and EventGossipReceived
}

// CommandKind discriminates the four accepted command variants.
type CommandKind uint8

const (
	CommandBroadcast CommandKind = iota
	CommandSend
	CommandDial
	CommandSubscribe
)

// Command is accepted on the Host's command channel.
type Command struct {
	Kind CommandKind
	Peer peer.ID // set for CommandSend
	Topic Topic // set for CommandBroadcast and CommandSubscribe
	Msg Envelope // set for CommandBroadcast and CommandSend
	Addr string // set for CommandDial (a Multiaddr string)

	// Done, if non-nil, receives the command's error (nil on success) once
	// the command has been applied, and is then closed. Optional: callers
	// that don't need confirmation may leave it nil.
	Done chan error
}

func (c Command) finish(err error) {
	if c.Done == nil {
		return
	}
	c.Done <- err
	close(c.Done)
}
