// Copyright 2025 Certen Protocol
//
// Host wraps a libp2p node: authenticated peer identity, Multiaddr
// dialing, topic gossip, and directed request/response. Grounded on
// project-illium/ilxd's net package for protocol/stream conventions (a
// named protocol ID, a stream-per-request model) and on
// go-libp2p-pubsub's standard gossip API, promoting
// libp2p/go-libp2p-pubsub/multiaddr from transitive to direct
// dependencies.

package netp2p

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
)

// ProtocolID is the directed request/response protocol this network
// speaks.
const ProtocolID protocol.ID = "/sp-cdr-settlement/1.0.0"

// Host is the network layer: one libp2p host, one gossip router, and
// the command/event channel pair that bridges it to its consumer.
type Host struct {
	h host.Host
	ps *pubsub.PubSub
	log *slog.Logger

	mu sync.Mutex
	topics map[Topic]*pubsub.Topic
	subs map[Topic]*pubsub.Subscription

	events chan Event
	commands chan Command

	cancel context.CancelFunc
}

// NewHost constructs a libp2p host whose PeerId is derived from the
// node's long-term Ed25519 voting key, listens on listenAddr, and joins a
// gossip router.
func NewHost(ctx context.Context, listenAddr string, votingKey ed25519.PrivateKey, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}

	priv, err := crypto.UnmarshalEd25519PrivateKey(append([]byte(nil), votingKey...))
	if err != nil {
		return nil, fmt.Errorf("netp2p: derive libp2p identity: %w", err)
	}

	opts := []libp2p.Option{libp2p.Identity(priv)}
	if listenAddr != "" {
		opts = append(opts, libp2p.ListenAddrStrings(listenAddr))
	}

	lh, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("netp2p: create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, lh)
	if err != nil {
		return nil, fmt.Errorf("netp2p: create gossipsub router: %w", err)
	}

	hostCtx, cancel := context.WithCancel(ctx)

	h := &Host{
		h: lh,
		ps: ps,
		log: logger,
		topics: make(map[Topic]*pubsub.Topic),
		subs: make(map[Topic]*pubsub.Subscription),
		events: make(chan Event, 256),
		commands: make(chan Command, 256),
		cancel: cancel,
	}

	lh.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			h.emit(Event{Kind: EventPeerConnected, Peer: c.RemotePeer()})
		},
		DisconnectedF: func(_ network.Network, c network.Conn) {
			h.emit(Event{Kind: EventPeerDisconnected, Peer: c.RemotePeer()})
		},
	})

	lh.SetStreamHandler(ProtocolID, h.handleStream)

	go h.runCommands(hostCtx)

	return h, nil
}

// ID returns this node's PeerId.
func (h *Host) ID() peer.ID { return h.h.ID() }

// Events returns the channel of network events for this host's consumer.
func (h *Host) Events() <-chan Event { return h.events }

// Commands returns the channel consumers send commands on.
func (h *Host) Commands() chan<- Command { return h.commands }

func (h *Host) emit(e Event) {
	select {
	case h.events <- e:
	default:
		h.log.Warn("netp2p: event channel full, dropping event", "kind", e.Kind)
	}
}

func (h *Host) handleStream(s network.Stream) {
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		h.log.Warn("netp2p: read stream failed", "peer", s.Conn().RemotePeer(), "error", err)
		return
	}
	envelope, err := DecodeEnvelope(data)
	if err != nil {
		h.log.Warn("netp2p: malformed stream message", "peer", s.Conn().RemotePeer(), "error", err)
		return
	}
	h.emit(Event{Kind: EventMessageReceived, Peer: s.Conn().RemotePeer(), Msg: envelope})
}

func (h *Host) runCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			h.apply(ctx, cmd)
		}
	}
}

func (h *Host) apply(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CommandSubscribe:
		cmd.finish(h.subscribe(ctx, cmd.Topic))
	case CommandBroadcast:
		cmd.finish(h.broadcast(ctx, cmd.Topic, cmd.Msg))
	case CommandSend:
		cmd.finish(h.send(ctx, cmd.Peer, cmd.Msg))
	case CommandDial:
		cmd.finish(h.dial(ctx, cmd.Addr))
	}
}

func (h *Host) topicHandle(t Topic) (*pubsub.Topic, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tp, ok := h.topics[t]; ok {
		return tp, nil
	}
	tp, err := h.ps.Join(string(t))
	if err != nil {
		return nil, fmt.Errorf("netp2p: join topic %s: %w", t, err)
	}
	h.topics[t] = tp
	return tp, nil
}

// subscribe joins topic and starts forwarding its messages as
// GossipReceived events, deduping is left to the consumer
// ("duplicates are deduped at the consumer by message hash").
func (h *Host) subscribe(ctx context.Context, t Topic) error {
	h.mu.Lock()
	if _, ok := h.subs[t]; ok {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	tp, err := h.topicHandle(t)
	if err != nil {
		return err
	}
	sub, err := tp.Subscribe()
	if err != nil {
		return fmt.Errorf("netp2p: subscribe to topic %s: %w", t, err)
	}

	h.mu.Lock()
	h.subs[t] = sub
	h.mu.Unlock()

	go h.readTopic(ctx, t, sub)
	return nil
}

func (h *Host) readTopic(ctx context.Context, t Topic, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return // ctx cancelled or subscription cancelled
		}
		if msg.ReceivedFrom == h.h.ID() {
			continue // gossipsub echoes our own publishes back
		}
		envelope, err := DecodeEnvelope(msg.Data)
		if err != nil {
			h.log.Warn("netp2p: malformed gossip message", "topic", t, "from", msg.ReceivedFrom, "error", err)
			continue
		}
		h.emit(Event{Kind: EventGossipReceived, Topic: t, Peer: msg.ReceivedFrom, Msg: envelope})
	}
}

// broadcast publishes msg on topic, joining it first if necessary.
func (h *Host) broadcast(ctx context.Context, t Topic, msg Envelope) error {
	tp, err := h.topicHandle(t)
	if err != nil {
		return err
	}
	return tp.Publish(ctx, msg.Encode())
}

// send opens a directed stream to p and writes msg.
func (h *Host) send(ctx context.Context, p peer.ID, msg Envelope) error {
	s, err := h.h.NewStream(ctx, p, ProtocolID)
	if err != nil {
		return fmt.Errorf("netp2p: open stream to %s: %w", p, err)
	}
	defer s.Close()
	if _, err := s.Write(msg.Encode()); err != nil {
		return fmt.Errorf("netp2p: write stream to %s: %w", p, err)
	}
	return nil
}

// dial connects to the peer at addr, a Multiaddr string that must include
// a /p2p/<id> component.
func (h *Host) dial(ctx context.Context, addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("netp2p: parse multiaddr %q: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("netp2p: resolve peer info from %q: %w", addr, err)
	}
	if err := h.h.Connect(ctx, *info); err != nil {
		return fmt.Errorf("netp2p: dial %s: %w", info.ID, err)
	}
	return nil
}

// Close shuts down the host and its subscriptions.
func (h *Host) Close() error {
	h.cancel()
	h.mu.Lock()
	for _, sub := range h.subs {
		sub.Cancel()
	}
	h.mu.Unlock()
	return h.h.Close()
}
