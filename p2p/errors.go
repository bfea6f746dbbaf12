package p2p

import (
	"errors"
	"fmt"
)

// Sentinel errors, grouped by the taxonomy in the design doc. Callers that
// need to distinguish a specific case use errors.Is/errors.As; most call
// sites just propagate the error into a ConnectionError or Misbehaved event.
var (
	// DialError
	ErrConnectionRefusedOrTimedOut = errors.New("connection refused or timed out")
	ErrAttemptToDialSelf           = errors.New("attempted to dial self")
	ErrNoAddresses                 = errors.New("no addresses to bind or dial")
	ErrTransportFailure            = errors.New("transport failure")

	// ProtocolError
	ErrIncompatibleVersion = errors.New("incompatible protocol version")
	ErrMessageTooLarge     = errors.New("message exceeds maximum frame size")
	ErrMalformedMessage    = errors.New("malformed message")
	ErrUnexpectedMessage   = errors.New("unexpected message")

	// PeerError
	ErrPeerAlreadyExists = errors.New("peer already registered")
	ErrPeerDoesntExist   = errors.New("peer not registered")
	ErrPeerUnavailable   = errors.New("peer unavailable")

	// Channel / service lifecycle
	ErrChannelClosed = errors.New("channel closed")
)

// DifferentNetworkError reports a magic-byte mismatch during handshake.
// ProtocolError::DifferentNetwork(local, remote) in the design.
type DifferentNetworkError struct {
	Local  MagicBytes
	Remote MagicBytes
}

func (e *DifferentNetworkError) Error() string {
	return fmt.Sprintf("different network: local=%s remote=%s", e.Local, e.Remote)
}

// MessageTooLargeError is returned by SyncingMessagingHandle.MakeAnnouncement
// when the caller-supplied payload exceeds AnnouncementMaxSize, and by the
// framed connection when a frame read or written exceeds its maximum frame
// size (AnnouncementMaxSize plus frameHeaderAllowance in the Backend).
type MessageTooLargeError struct {
	Actual int
	Max    int
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("message too large: %d bytes exceeds max %d", e.Actual, e.Max)
}

func (e *MessageTooLargeError) Is(target error) bool {
	return target == ErrMessageTooLarge
}

// BindFailureError reports that one or more bind addresses could not be
// listened on.
type BindFailureError struct {
	Address Address
	Cause   error
}

func (e *BindFailureError) Error() string {
	return fmt.Sprintf("bind failure on %s: %v", e.Address, e.Cause)
}

func (e *BindFailureError) Unwrap() error { return e.Cause }
