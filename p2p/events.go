package p2p

import "github.com/drep-project/p2p-core/p2p/wire"

// Command is sent from a frontend handle to the Backend.
type Command struct {
	Kind CommandKind

	// Connect
	Address Address

	// Disconnect / SendRequest
	PeerId PeerId

	// SendRequest / SendResponse
	RequestId RequestId
	Category  wire.Category
	Payload   []byte

	// AnnounceData
	Topic Topic
}

type CommandKind uint8

const (
	CmdConnect CommandKind = iota
	CmdDisconnect
	CmdSendRequest
	CmdSendResponse
	CmdAnnounceData
)

// ConnectivityEvent is one of the events the Backend surfaces through
// ConnectivityHandle.PollNext.
type ConnectivityEvent struct {
	Kind ConnectivityEventKind

	PeerId   PeerId
	Address  Address
	PeerInfo PeerInfo

	RequestId RequestId
	Payload   []byte

	Error error
}

type ConnectivityEventKind uint8

const (
	EvInboundAccepted ConnectivityEventKind = iota
	EvOutboundAccepted
	EvConnectionClosed
	EvConnectionError
	EvRequest
	EvResponse
	EvMisbehaved
)

// SyncingEvent is one of the events the Backend surfaces through
// SyncingMessagingHandle.PollNext. It carries the same underlying wire
// traffic as ConnectivityEvent but filtered to the SyncRequest/SyncResponse
// category plus Announcement, which connectivity never sees.
type SyncingEvent struct {
	Kind SyncingEventKind

	PeerId    PeerId
	RequestId RequestId
	Payload   []byte

	Topic Topic
}

type SyncingEventKind uint8

const (
	EvSyncRequest SyncingEventKind = iota
	EvSyncResponse
	EvAnnouncement
)
