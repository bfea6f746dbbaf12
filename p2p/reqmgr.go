package p2p

import (
	"github.com/google/uuid"

	"github.com/drep-project/p2p-core/p2p/wire"
)

// remoteRequest is what an ephemeral ID resolves back to: the peer that sent
// the inbound request, and the request ID that peer chose for its own
// bookkeeping.
type remoteRequest struct {
	peer     PeerId
	remoteID RequestId
}

// RequestManager decouples wire-chosen request IDs from the ephemeral IDs
// exposed to the frontend, so a response handed back by the frontend can
// always be routed to the originating inbound request without colliding
// with the frontend's own outbound bookkeeping. It is not safe for
// concurrent use: the Backend is its only owner and calls it synchronously
// from its single event loop, matching
// p2p/src/net/default_backend/request_manager.rs in the original design.
type RequestManager struct {
	// ephemeralsByPeer tracks which ephemeral IDs belong to each peer, so
	// unregistering a peer can remove all of them atomically.
	ephemeralsByPeer map[PeerId]map[RequestId]struct{}

	// ephemeralToRemote resolves an ephemeral ID back to the peer and the
	// remote's own request ID.
	ephemeralToRemote map[RequestId]remoteRequest
}

// NewRequestManager returns an empty RequestManager.
func NewRequestManager() *RequestManager {
	return &RequestManager{
		ephemeralsByPeer:  make(map[PeerId]map[RequestId]struct{}),
		ephemeralToRemote: make(map[RequestId]remoteRequest),
	}
}

// RegisterPeer allocates empty bookkeeping for p. It fails with
// ErrPeerAlreadyExists if p is already registered.
func (m *RequestManager) RegisterPeer(p PeerId) error {
	if _, exists := m.ephemeralsByPeer[p]; exists {
		return ErrPeerAlreadyExists
	}
	m.ephemeralsByPeer[p] = make(map[RequestId]struct{})
	return nil
}

// UnregisterPeer removes p and every ephemeral ID it owns from both maps.
// Idempotent: unregistering an unknown peer is a no-op.
func (m *RequestManager) UnregisterPeer(p PeerId) {
	ephemerals, ok := m.ephemeralsByPeer[p]
	if !ok {
		return
	}
	for id := range ephemerals {
		delete(m.ephemeralToRemote, id)
	}
	delete(m.ephemeralsByPeer, p)
}

// RegisterRequest is called on inbound request receipt. It mints a fresh
// ephemeral ID, records the mapping back to (p, remoteRequestID), and
// returns the ephemeral ID -- the only ID the frontend ever sees for this
// request. Fails with ErrPeerDoesntExist if p was never registered (e.g. the
// connection already closed).
func (m *RequestManager) RegisterRequest(p PeerId, remoteRequestID RequestId) (RequestId, error) {
	ephemerals, ok := m.ephemeralsByPeer[p]
	if !ok {
		return RequestId{}, ErrPeerDoesntExist
	}

	ephemeralID := NewRequestId()
	ephemerals[ephemeralID] = struct{}{}
	m.ephemeralToRemote[ephemeralID] = remoteRequest{peer: p, remoteID: remoteRequestID}
	return ephemeralID, nil
}

// MakeRequest packages payload as an outbound wire Request carrying the
// caller-chosen localRequestID end-to-end. The manager does not track
// outbound IDs at all -- that bookkeeping belongs to the calling layer (the
// frontend handle).
func (m *RequestManager) MakeRequest(localRequestID RequestId, category wire.Category, payload []byte) wire.Frame {
	return wire.Frame{
		Kind: wire.KindRequest,
		Request: &wire.Request{
			RequestID: requestIDBytes(localRequestID),
			Category:  category,
			Payload:   payload,
		},
	}
}

// MakeResponse consumes the ephemeral mapping for ephemeralID (removing it
// from both maps) and returns the peer to send to plus a Response frame
// carrying the remote's original request ID, so the remote can correlate
// it. Returns ok=false if ephemeralID is unknown -- already consumed, or the
// peer disconnected in the meantime -- in which case the caller should
// silently drop the response.
func (m *RequestManager) MakeResponse(ephemeralID RequestId, category wire.Category, payload []byte) (PeerId, wire.Frame, bool) {
	rr, ok := m.ephemeralToRemote[ephemeralID]
	if !ok {
		return PeerId{}, wire.Frame{}, false
	}
	delete(m.ephemeralToRemote, ephemeralID)
	if ephemerals, ok := m.ephemeralsByPeer[rr.peer]; ok {
		delete(ephemerals, ephemeralID)
	}

	frame := wire.Frame{
		Kind: wire.KindResponse,
		Response: &wire.Response{
			RequestID: requestIDBytes(rr.remoteID),
			Category:  category,
			Payload:   payload,
		},
	}
	return rr.peer, frame, true
}

func requestIDBytes(id RequestId) [16]byte {
	return [16]byte(id.id)
}

func requestIDFromBytes(b [16]byte) RequestId {
	return RequestId{id: uuid.UUID(b)}
}
