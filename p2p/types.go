package p2p

import (
	"fmt"

	"github.com/google/uuid"
)

// PeerId is an opaque, process-unique identifier minted by the Backend on a
// successful handshake. It is never reused: once a peer's connection closes,
// its PeerId is retired for good.
type PeerId struct {
	id uuid.UUID
}

// NewPeerId mints a fresh random PeerId.
func NewPeerId() PeerId {
	return PeerId{id: uuid.New()}
}

func (p PeerId) String() string {
	return p.id.String()
}

// IsZero reports whether p is the zero value (never minted).
func (p PeerId) IsZero() bool {
	return p.id == uuid.Nil
}

// RequestId is a 128-bit random identifier. Depending on context it plays one
// of two disjoint roles: wire-local (chosen by the sender for its own
// bookkeeping) or ephemeral (minted by the RequestManager to expose an
// inbound request to the frontend). The two roles are kept in distinct maps
// by RequestManager; see its doc comment.
type RequestId struct {
	id uuid.UUID
}

// NewRequestId mints a fresh random RequestId.
func NewRequestId() RequestId {
	return RequestId{id: uuid.New()}
}

func (r RequestId) String() string {
	return r.id.String()
}

// Version is a semver triple carried in the handshake.
type Version struct {
	Major uint8
	Minor uint16
	Patch uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compatible reports whether a remote version may interoperate with v.
// The core only requires matching major versions; finer compatibility
// policy belongs to the upper layer.
func (v Version) Compatible(remote Version) bool {
	return v.Major == remote.Major
}

// Topic is a coarse routing tag for announcements. The set is closed but
// additive: new topics get new discriminants, never reused ones.
type Topic uint8

const (
	TopicBlocks Topic = iota
	TopicTransactions
)

func (t Topic) String() string {
	switch t {
	case TopicBlocks:
		return "blocks"
	case TopicTransactions:
		return "transactions"
	default:
		return fmt.Sprintf("topic(%d)", uint8(t))
	}
}

// MagicBytes identifies a network, preventing cross-network cross-talk.
type MagicBytes [4]byte

func (m MagicBytes) String() string {
	return fmt.Sprintf("%02x%02x%02x%02x", m[0], m[1], m[2], m[3])
}

// Address is a dialable transport address (e.g. "host:port" for TCP).
type Address string

func (a Address) String() string { return string(a) }

// BannableAddress is the coarser identity used for ban lists, e.g. an IP
// without a port. Kept as a distinct type from Address so that banning
// survives a reconnection from a new ephemeral port.
type BannableAddress string

func (b BannableAddress) String() string { return string(b) }

// PeerInfo is the immutable result of a successful handshake.
type PeerInfo struct {
	PeerId                  PeerId
	Network                 MagicBytes
	Version                 Version
	Agent                   *string
	Subscriptions           []Topic
	ReceiverObservedAddress *Address
}

// HasSubscription reports whether the peer advertised interest in topic.
func (pi PeerInfo) HasSubscription(topic Topic) bool {
	for _, t := range pi.Subscriptions {
		if t == topic {
			return true
		}
	}
	return false
}
