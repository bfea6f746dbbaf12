package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := *DefaultConfig
	cfg.BindAddresses = []Address{"0"}
	cfg.PingInterval = time.Hour
	return &cfg
}

func startNode(t *testing.T, ctx context.Context, transport Transport, agent string) *Node {
	t.Helper()
	identity := LocalIdentity{
		Network:       MagicBytes{1, 2, 3, 4},
		Version:       Version{Major: 1},
		Agent:         &agent,
		Subscriptions: []Topic{TopicBlocks},
	}
	node, err := Start(ctx, transport, testConfig(), identity)
	require.NoError(t, err)
	return node
}

func awaitConnEvent(t *testing.T, ctx context.Context, h *ConnectivityHandle, kind ConnectivityEventKind) ConnectivityEvent {
	t.Helper()
	for {
		ev, err := h.PollNext(ctx)
		require.NoError(t, err)
		if ev.Kind == kind {
			return ev
		}
	}
}

func awaitSyncEvent(t *testing.T, ctx context.Context, h *SyncingMessagingHandle, kind SyncingEventKind) SyncingEvent {
	t.Helper()
	for {
		ev, err := h.PollNext(ctx)
		require.NoError(t, err)
		if ev.Kind == kind {
			return ev
		}
	}
}

func TestBackendConnectAndExchangeRequestResponse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transport := NewChannelTransport()
	nodeA := startNode(t, ctx, transport, "a")
	nodeB := startNode(t, ctx, transport, "b")
	defer nodeA.Stop()
	defer nodeB.Stop()

	err := nodeA.Connectivity.Connect(nodeB.Connectivity.LocalAddresses()[0])
	require.NoError(t, err)

	evA := awaitConnEvent(t, ctx, &nodeA.Connectivity, EvOutboundAccepted)
	evB := awaitConnEvent(t, ctx, &nodeB.Connectivity, EvInboundAccepted)
	require.False(t, evA.PeerId.IsZero())
	require.False(t, evB.PeerId.IsZero())

	reqID, err := nodeA.Syncing.SendRequest(evA.PeerId, []byte("ping"))
	require.NoError(t, err)

	syncReq := awaitSyncEvent(t, ctx, &nodeB.Syncing, EvSyncRequest)
	require.Equal(t, []byte("ping"), syncReq.Payload)

	err = nodeB.Syncing.SendResponse(syncReq.RequestId, []byte("pong"))
	require.NoError(t, err)

	syncResp := awaitSyncEvent(t, ctx, &nodeA.Syncing, EvSyncResponse)
	require.Equal(t, reqID, syncResp.RequestId)
	require.Equal(t, []byte("pong"), syncResp.Payload)
}

func TestBackendAnnouncementReachesSubscribedPeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transport := NewChannelTransport()
	nodeA := startNode(t, ctx, transport, "a")
	nodeB := startNode(t, ctx, transport, "b")
	defer nodeA.Stop()
	defer nodeB.Stop()

	require.NoError(t, nodeA.Connectivity.Connect(nodeB.Connectivity.LocalAddresses()[0]))
	awaitConnEvent(t, ctx, &nodeA.Connectivity, EvOutboundAccepted)
	awaitConnEvent(t, ctx, &nodeB.Connectivity, EvInboundAccepted)

	require.NoError(t, nodeA.Syncing.MakeAnnouncement(TopicBlocks, []byte("block-1")))

	ann := awaitSyncEvent(t, ctx, &nodeB.Syncing, EvAnnouncement)
	require.Equal(t, TopicBlocks, ann.Topic)
	require.Equal(t, []byte("block-1"), ann.Payload)
}

func TestBackendAnnouncementOverMaxSizeRejectedAtHandle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node := startNode(t, ctx, NewChannelTransport(), "a")
	defer node.Stop()

	huge := make([]byte, node.Syncing.cfg.AnnouncementMaxSize+1)
	err := node.Syncing.MakeAnnouncement(TopicBlocks, huge)
	require.Error(t, err)
	var tooLarge *MessageTooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestBackendDisconnectEmitsConnectionClosedOnBothSides(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transport := NewChannelTransport()
	nodeA := startNode(t, ctx, transport, "a")
	nodeB := startNode(t, ctx, transport, "b")
	defer nodeA.Stop()
	defer nodeB.Stop()

	require.NoError(t, nodeA.Connectivity.Connect(nodeB.Connectivity.LocalAddresses()[0]))
	evA := awaitConnEvent(t, ctx, &nodeA.Connectivity, EvOutboundAccepted)
	awaitConnEvent(t, ctx, &nodeB.Connectivity, EvInboundAccepted)

	require.NoError(t, nodeA.Connectivity.Disconnect(evA.PeerId))

	closedA := awaitConnEvent(t, ctx, &nodeA.Connectivity, EvConnectionClosed)
	closedB := awaitConnEvent(t, ctx, &nodeB.Connectivity, EvConnectionClosed)
	require.Equal(t, evA.PeerId, closedA.PeerId)
	require.False(t, closedB.PeerId.IsZero())
}

func TestBackendSelfDialEmitsAttemptToDialSelf(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node := startNode(t, ctx, NewChannelTransport(), "a")
	defer node.Stop()

	self := node.Connectivity.LocalAddresses()[0]
	require.NoError(t, node.Connectivity.Connect(self))

	ev := awaitConnEvent(t, ctx, &node.Connectivity, EvConnectionError)
	require.ErrorIs(t, ev.Error, ErrAttemptToDialSelf)

	first := awaitConnEvent(t, ctx, &node.Connectivity, EvConnectionClosed)
	second := awaitConnEvent(t, ctx, &node.Connectivity, EvConnectionClosed)
	require.NotEqual(t, first.PeerId, second.PeerId)
}

func TestBackendDifferentNetworkRejectsHandshake(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transport := NewChannelTransport()
	agentA, agentB := "a", "b"
	idA := LocalIdentity{Network: MagicBytes{1, 1, 1, 1}, Version: Version{Major: 1}, Agent: &agentA}
	idB := LocalIdentity{Network: MagicBytes{2, 2, 2, 2}, Version: Version{Major: 1}, Agent: &agentB}

	nodeA, err := Start(ctx, transport, testConfig(), idA)
	require.NoError(t, err)
	defer nodeA.Stop()
	nodeB, err := Start(ctx, transport, testConfig(), idB)
	require.NoError(t, err)
	defer nodeB.Stop()

	require.NoError(t, nodeA.Connectivity.Connect(nodeB.Connectivity.LocalAddresses()[0]))

	ev := awaitConnEvent(t, ctx, &nodeA.Connectivity, EvConnectionError)
	var netErr *DifferentNetworkError
	require.ErrorAs(t, ev.Error, &netErr)
}
