package p2p

import (
	"context"
	"io"
)

// Stream is a bidirectional, ordered, reliable byte channel between the
// local node and one remote peer. TCP connections, Noise-encrypted TCP
// connections and in-process channel pipes all satisfy it identically as
// far as the Framed Peer Connection is concerned.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer

	// LocalAddress and RemoteAddress report the stream's endpoints using the
	// transport's own Address representation.
	LocalAddress() Address
	RemoteAddress() Address
}

// Listener yields inbound Streams in arrival order.
type Listener interface {
	Accept(ctx context.Context) (Stream, Address, error)
	// Addresses reports the actual local addresses bound, which may differ
	// from the requested ones (e.g. when port 0 was requested).
	Addresses() []Address
	Close() error
}

// Transport is the pluggable capability set the Backend is polymorphic over.
// The three shipped implementations are TCPTransport, NoiseTransport and
// ChannelTransport; all three satisfy this interface identically.
type Transport interface {
	// Bind begins listening on the first of the given addresses; the shipped
	// transports do not bind the remaining ones. It fails with ErrNoAddresses
	// for an empty list and with a *BindFailureError if that address cannot
	// be bound.
	Bind(ctx context.Context, addresses []Address) (Listener, error)

	// Connect initiates an outbound Stream. It fails with
	// ErrConnectionRefusedOrTimedOut or ErrAttemptToDialSelf; other failures
	// (a cancelled context, a failed Noise handshake) are returned as they
	// occur.
	Connect(ctx context.Context, address Address) (Stream, error)

	// BannableAddress derives the coarser ban-list identity from a dialable
	// Address (e.g. strips the port from a "host:port" TCP address).
	BannableAddress(address Address) BannableAddress
}
