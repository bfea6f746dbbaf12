package p2p

import (
	"context"
	"sort"

	"github.com/drep-project/p2p-core/p2p/wire"
)

// LocalIdentity is what this node presents to every peer it connects to.
// It is immutable for the node's lifetime.
type LocalIdentity struct {
	Network       MagicBytes
	Version       Version
	Agent         *string
	Subscriptions []Topic
}

func (li LocalIdentity) toWire(receiverObserved *Address) wire.Handshake {
	subs := make([]uint8, len(li.Subscriptions))
	for i, t := range li.Subscriptions {
		subs[i] = uint8(t)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })

	h := wire.Handshake{
		Magic:         li.Network,
		VersionMajor:  li.Version.Major,
		VersionMinor:  li.Version.Minor,
		VersionPatch:  li.Version.Patch,
		Subscriptions: subs,
	}
	if li.Agent != nil {
		h.HasAgent = true
		h.Agent = *li.Agent
	}
	if receiverObserved != nil {
		h.HasReceiverAddress = true
		h.ReceiverAddress = receiverObserved.String()
	}
	return h
}

func fromWireHandshake(peerID PeerId, h wire.Handshake) PeerInfo {
	subs := make([]Topic, len(h.Subscriptions))
	for i, s := range h.Subscriptions {
		subs[i] = Topic(s)
	}
	pi := PeerInfo{
		PeerId: peerID,
		Network: MagicBytes{
			h.Magic[0], h.Magic[1], h.Magic[2], h.Magic[3],
		},
		Version: Version{
			Major: h.VersionMajor,
			Minor: h.VersionMinor,
			Patch: h.VersionPatch,
		},
		Subscriptions: subs,
	}
	if h.HasAgent {
		agent := h.Agent
		pi.Agent = &agent
	}
	if h.HasReceiverAddress {
		addr := Address(h.ReceiverAddress)
		pi.ReceiverObservedAddress = &addr
	}
	return pi
}

// performHandshake exchanges Handshake frames over fc and validates the
// result. The remote's observed address (where it believes it saw us
// connect from) is threaded through for the ConnectivityEvent but never
// itself validated, per spec ยง9.
func performHandshake(ctx context.Context, fc *FramedConnection, local LocalIdentity, remoteObservedBy Address) (PeerInfo, error) {
	type result struct {
		frame wire.Frame
		err   error
	}

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- fc.WriteFrame(wire.Frame{
			Kind:      wire.KindHandshake,
			Handshake: ptr(local.toWire(&remoteObservedBy)),
		})
	}()

	recvCh := make(chan result, 1)
	go func() {
		f, err := fc.ReadFrame()
		recvCh <- result{f, err}
	}()

	var remote wire.Frame
	select {
	case err := <-sendErr:
		if err != nil {
			return PeerInfo{}, err
		}
	case <-ctx.Done():
		return PeerInfo{}, ctx.Err()
	}

	select {
	case r := <-recvCh:
		if r.err != nil {
			return PeerInfo{}, r.err
		}
		remote = r.frame
	case <-ctx.Done():
		return PeerInfo{}, ctx.Err()
	}

	if remote.Kind != wire.KindHandshake || remote.Handshake == nil {
		rejectWithReason(fc, "expected handshake")
		return PeerInfo{}, ErrUnexpectedMessage
	}

	info := fromWireHandshake(NewPeerId(), *remote.Handshake)

	if info.Network != local.Network {
		rejectWithReason(fc, "network mismatch")
		return PeerInfo{}, &DifferentNetworkError{Local: local.Network, Remote: info.Network}
	}
	if !local.Version.Compatible(info.Version) {
		rejectWithReason(fc, "incompatible version")
		return PeerInfo{}, ErrIncompatibleVersion
	}

	return info, nil
}

// rejectWithReason sends a Disconnect frame carrying reason without waiting
// for it to be written: the remote may never read again (an in-process pipe
// write blocks until read). Closing fc ends a write that is still pending.
func rejectWithReason(fc *FramedConnection, reason string) {
	go func() {
		_ = fc.WriteFrame(wire.Frame{Kind: wire.KindDisconnect, Disconnect: &wire.Disconnect{Reason: reason}})
	}()
}

func ptr[T any](v T) *T { return &v }
