package p2p

import (
	"context"

	"github.com/drep-project/p2p-core/p2p/wire"
)

// ConnectivityService is the facade the peer manager talks to: connection
// lifecycle plus the connectivity-category request/response traffic.
type ConnectivityService interface {
	Connect(address Address) error
	Disconnect(peerID PeerId) error
	SendRequest(peerID PeerId, payload []byte) (RequestId, error)
	SendResponse(requestID RequestId, payload []byte) error
	LocalAddresses() []Address
	PollNext(ctx context.Context) (ConnectivityEvent, error)
}

// SyncingMessagingService is the facade block-sync logic talks to: the
// sync-category request/response traffic plus topic-tagged announcements.
type SyncingMessagingService interface {
	SendRequest(peerID PeerId, payload []byte) (RequestId, error)
	SendResponse(requestID RequestId, payload []byte) error
	MakeAnnouncement(topic Topic, payload []byte) error
	PollNext(ctx context.Context) (SyncingEvent, error)
}

// ConnectivityHandle is a thin facade owning one command sender and one
// event receiver, mirroring the teacher's channel-pair handles.
type ConnectivityHandle struct {
	backend *Backend
	events  <-chan ConnectivityEvent
}

var _ ConnectivityService = (*ConnectivityHandle)(nil)

func (h *ConnectivityHandle) Connect(address Address) error {
	h.backend.Submit(Command{Kind: CmdConnect, Address: address})
	return nil
}

func (h *ConnectivityHandle) Disconnect(peerID PeerId) error {
	h.backend.Submit(Command{Kind: CmdDisconnect, PeerId: peerID})
	return nil
}

func (h *ConnectivityHandle) SendRequest(peerID PeerId, payload []byte) (RequestId, error) {
	id := NewRequestId()
	h.backend.Submit(Command{
		Kind: CmdSendRequest, PeerId: peerID, RequestId: id,
		Category: wire.CategoryConnectivity, Payload: payload,
	})
	return id, nil
}

func (h *ConnectivityHandle) SendResponse(requestID RequestId, payload []byte) error {
	h.backend.Submit(Command{
		Kind: CmdSendResponse, RequestId: requestID,
		Category: wire.CategoryConnectivity, Payload: payload,
	})
	return nil
}

func (h *ConnectivityHandle) LocalAddresses() []Address {
	return h.backend.LocalAddresses()
}

func (h *ConnectivityHandle) PollNext(ctx context.Context) (ConnectivityEvent, error) {
	select {
	case ev, ok := <-h.events:
		if !ok {
			return ConnectivityEvent{}, ErrChannelClosed
		}
		return ev, nil
	case <-ctx.Done():
		return ConnectivityEvent{}, ctx.Err()
	}
}

// SyncingMessagingHandle is the syncing counterpart of ConnectivityHandle.
type SyncingMessagingHandle struct {
	backend *Backend
	cfg     *Config
	events  <-chan SyncingEvent
}

var _ SyncingMessagingService = (*SyncingMessagingHandle)(nil)

func (h *SyncingMessagingHandle) SendRequest(peerID PeerId, payload []byte) (RequestId, error) {
	id := NewRequestId()
	h.backend.Submit(Command{
		Kind: CmdSendRequest, PeerId: peerID, RequestId: id,
		Category: wire.CategorySyncing, Payload: payload,
	})
	return id, nil
}

func (h *SyncingMessagingHandle) SendResponse(requestID RequestId, payload []byte) error {
	h.backend.Submit(Command{
		Kind: CmdSendResponse, RequestId: requestID,
		Category: wire.CategorySyncing, Payload: payload,
	})
	return nil
}

// MakeAnnouncement enforces the announcement size bound at the handle,
// before the command ever reaches the backend or the wire -- spec ยง8
// property 6.
func (h *SyncingMessagingHandle) MakeAnnouncement(topic Topic, payload []byte) error {
	if len(payload) > h.cfg.AnnouncementMaxSize {
		return &MessageTooLargeError{Actual: len(payload), Max: h.cfg.AnnouncementMaxSize}
	}
	h.backend.Submit(Command{Kind: CmdAnnounceData, Topic: topic, Payload: payload})
	return nil
}

func (h *SyncingMessagingHandle) PollNext(ctx context.Context) (SyncingEvent, error) {
	select {
	case ev, ok := <-h.events:
		if !ok {
			return SyncingEvent{}, ErrChannelClosed
		}
		return ev, nil
	case <-ctx.Done():
		return SyncingEvent{}, ctx.Err()
	}
}

// Node bundles a running Backend with its two frontend handles and the
// lifecycle to stop it, analogous to what the teacher's (*p2p.Server)
// represents for devp2p.
type Node struct {
	backend *Backend
	cancel  context.CancelFunc

	Connectivity ConnectivityHandle
	Syncing      SyncingMessagingHandle
}

// Start binds transport and spawns the Backend's event loop, returning a
// Node exposing both frontend handles. Mirrors
// DefaultNetworkingService::start in the original design: bind, spawn the
// backend goroutine, hand back the two handles.
func Start(ctx context.Context, transport Transport, cfg *Config, identity LocalIdentity) (*Node, error) {
	connEvents := make(chan ConnectivityEvent, 64)
	syncEvents := make(chan SyncingEvent, 64)

	backend := NewBackend(transport, cfg, identity, connEvents, syncEvents)
	if err := backend.Bind(ctx); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	go backend.Run(runCtx)

	return &Node{
		backend: backend,
		cancel:  cancel,
		Connectivity: ConnectivityHandle{
			backend: backend,
			events:  connEvents,
		},
		Syncing: SyncingMessagingHandle{
			backend: backend,
			cfg:     cfg,
			events:  syncEvents,
		},
	}, nil
}

// Stop signals the Backend to shut down; it disconnects every live peer and
// emits each one's ConnectionClosed before Run returns.
func (n *Node) Stop() {
	n.cancel()
}
