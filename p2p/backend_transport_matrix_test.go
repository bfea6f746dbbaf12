package p2p

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// transportPair returns the pair of Transport values two nodes in the same
// test should use: a single shared ChannelTransport for the in-process
// variant (it needs a shared rendezvous registry to find each other), or two
// independent instances for TCP and Noise, which dial each other over a real
// loopback socket. bindAddr is the address both nodes bind to.
func transportPair(t *testing.T, kind string) (a, b Transport, bindAddr Address) {
	t.Helper()
	switch kind {
	case "channels":
		ct := NewChannelTransport()
		return ct, ct, "0"
	case "tcp":
		return NewTCPTransport(), NewTCPTransport(), "127.0.0.1:0"
	case "noise":
		na, err := NewNoiseTransport()
		require.NoError(t, err)
		nb, err := NewNoiseTransport()
		require.NoError(t, err)
		return na, nb, "127.0.0.1:0"
	default:
		t.Fatalf("unknown transport kind %q", kind)
		return nil, nil, ""
	}
}

func startNodeOn(t *testing.T, ctx context.Context, transport Transport, bindAddr Address, agent string) *Node {
	t.Helper()
	cfg := *DefaultConfig
	cfg.BindAddresses = []Address{bindAddr}
	cfg.PingInterval = time.Hour
	identity := LocalIdentity{
		Network:       MagicBytes{1, 2, 3, 4},
		Version:       Version{Major: 1},
		Agent:         &agent,
		Subscriptions: []Topic{TopicBlocks},
	}
	node, err := Start(ctx, transport, &cfg, identity)
	require.NoError(t, err)
	return node
}

// selfDialAddress returns the address a node should dial to reach its own
// listener. For channels and TCP this is just the node's own bound address,
// which Backend's address-equality fast path (handleConnect's isSelfAddress)
// catches before the transport is ever asked to dial. For Noise, "localhost"
// is substituted for the bound host, so that fast path and TCPTransport's own
// selfAddrs shortcut both miss; the dial goes all the way to a real loopback
// connection, and only the Noise handshake's static-key comparison on both
// ends rejects it -- exercising the transport-level self-dial defense
// instead of the Backend shortcut.
func selfDialAddress(t *testing.T, kind string, bound Address) Address {
	t.Helper()
	if kind != "noise" {
		return bound
	}
	_, port, err := net.SplitHostPort(bound.String())
	require.NoError(t, err)
	return Address(net.JoinHostPort("localhost", port))
}

// TestBackendConnectAcceptDisconnectSelfDial mirrors the three
// DefaultNetworkingService::start transport variants from the original
// design: the same connect/accept/disconnect/self-dial scenario run once per
// transport, proving the Backend is genuinely transport-polymorphic rather
// than only ever exercised over the in-process channel transport.
func TestBackendConnectAcceptDisconnectSelfDial(t *testing.T) {
	for _, kind := range []string{"channels", "tcp", "noise"} {
		kind := kind
		t.Run(kind, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			ta, tb, bindAddr := transportPair(t, kind)
			nodeA := startNodeOn(t, ctx, ta, bindAddr, "a")
			nodeB := startNodeOn(t, ctx, tb, bindAddr, "b")
			defer nodeA.Stop()
			defer nodeB.Stop()

			require.NoError(t, nodeA.Connectivity.Connect(nodeB.Connectivity.LocalAddresses()[0]))

			evA := awaitConnEvent(t, ctx, &nodeA.Connectivity, EvOutboundAccepted)
			evB := awaitConnEvent(t, ctx, &nodeB.Connectivity, EvInboundAccepted)
			require.False(t, evA.PeerId.IsZero())
			require.False(t, evB.PeerId.IsZero())

			require.NoError(t, nodeB.Connectivity.Disconnect(evB.PeerId))
			closedA := awaitConnEvent(t, ctx, &nodeA.Connectivity, EvConnectionClosed)
			closedB := awaitConnEvent(t, ctx, &nodeB.Connectivity, EvConnectionClosed)
			require.Equal(t, evA.PeerId, closedA.PeerId)
			require.Equal(t, evB.PeerId, closedB.PeerId)

			self := selfDialAddress(t, kind, nodeA.Connectivity.LocalAddresses()[0])
			require.NoError(t, nodeA.Connectivity.Connect(self))

			selfErrEv := awaitConnEvent(t, ctx, &nodeA.Connectivity, EvConnectionError)
			require.ErrorIs(t, selfErrEv.Error, ErrAttemptToDialSelf)
			awaitConnEvent(t, ctx, &nodeA.Connectivity, EvConnectionClosed)
			awaitConnEvent(t, ctx, &nodeA.Connectivity, EvConnectionClosed)
		})
	}
}
