// Package wire defines the on-the-wire message shapes exchanged between
// Framed Peer Connections and their compact binary encoding.
//
// Each frame is: u32 length (little-endian) || kind byte || encoded payload.
// The backend never inspects Request/Response/Announcement payload bytes; it
// only bounds their length and hands them, still opaque, to the frontend.
package wire

import (
	"fmt"

	"github.com/drep-project/binary"
)

// Kind is the frame discriminant. Values are explicit and stable across
// versions; new kinds are appended, never renumbered.
type Kind uint8

const (
	KindHandshake Kind = iota
	KindRequest
	KindResponse
	KindAnnouncement
	KindPing
	KindPong
	KindDisconnect
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "handshake"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindAnnouncement:
		return "announcement"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Category distinguishes the two upward-facing event streams a Request or
// Response belongs to; the wire carries it as an explicit discriminant byte
// rather than forcing the backend to sniff the payload.
type Category uint8

const (
	CategoryConnectivity Category = iota
	CategorySyncing
)

// Handshake carries PeerInfo across the wire. Optional fields use a presence
// flag rather than relying on the codec understanding pointers/Option types.
type Handshake struct {
	Magic              [4]byte
	VersionMajor       uint8
	VersionMinor       uint16
	VersionPatch       uint16
	HasAgent           bool
	Agent              string
	Subscriptions      []uint8
	HasReceiverAddress bool
	ReceiverAddress    string
}

// Request carries an opaque application payload tagged with the sender's own
// bookkeeping ID and a category discriminant.
type Request struct {
	RequestID [16]byte
	Category  Category
	Payload   []byte
}

// Response answers a prior Request, correlated by RequestID.
type Response struct {
	RequestID [16]byte
	Category  Category
	Payload   []byte
}

// Announcement is a fire-and-forget, topic-tagged broadcast.
type Announcement struct {
	Topic   uint8
	Payload []byte
}

// Ping/Pong are the liveness-check pair; never surfaced past the Peer Task.
type Ping struct {
	Nonce uint64
}

type Pong struct {
	Nonce uint64
}

// Disconnect carries a human-readable reason sent just before a peer closes
// the stream on its own initiative (e.g. after rejecting a handshake).
type Disconnect struct {
	Reason string
}

// Frame is the decoded, still-tagged form of one wire frame.
type Frame struct {
	Kind         Kind
	Handshake    *Handshake
	Request      *Request
	Response     *Response
	Announcement *Announcement
	Ping         *Ping
	Pong         *Pong
	Disconnect   *Disconnect
}

// Encode serializes f's active payload into kind-tagged bytes, not including
// the length prefix (the framed connection adds that).
func Encode(f Frame) ([]byte, error) {
	var payload interface{}
	switch f.Kind {
	case KindHandshake:
		payload = f.Handshake
	case KindRequest:
		payload = f.Request
	case KindResponse:
		payload = f.Response
	case KindAnnouncement:
		payload = f.Announcement
	case KindPing:
		payload = f.Ping
	case KindPong:
		payload = f.Pong
	case KindDisconnect:
		payload = f.Disconnect
	default:
		return nil, fmt.Errorf("wire: unknown frame kind %d", f.Kind)
	}

	body, err := binary.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", f.Kind, err)
	}

	out := make([]byte, 1+len(body))
	out[0] = byte(f.Kind)
	copy(out[1:], body)
	return out, nil
}

// Decode parses kind-tagged bytes (without the length prefix) back into a
// Frame.
func Decode(data []byte) (Frame, error) {
	if len(data) < 1 {
		return Frame{}, fmt.Errorf("wire: empty frame")
	}
	kind := Kind(data[0])
	body := data[1:]

	f := Frame{Kind: kind}
	switch kind {
	case KindHandshake:
		f.Handshake = &Handshake{}
		if err := binary.Unmarshal(body, f.Handshake); err != nil {
			return Frame{}, fmt.Errorf("wire: decode handshake: %w", err)
		}
	case KindRequest:
		f.Request = &Request{}
		if err := binary.Unmarshal(body, f.Request); err != nil {
			return Frame{}, fmt.Errorf("wire: decode request: %w", err)
		}
	case KindResponse:
		f.Response = &Response{}
		if err := binary.Unmarshal(body, f.Response); err != nil {
			return Frame{}, fmt.Errorf("wire: decode response: %w", err)
		}
	case KindAnnouncement:
		f.Announcement = &Announcement{}
		if err := binary.Unmarshal(body, f.Announcement); err != nil {
			return Frame{}, fmt.Errorf("wire: decode announcement: %w", err)
		}
	case KindPing:
		f.Ping = &Ping{}
		if err := binary.Unmarshal(body, f.Ping); err != nil {
			return Frame{}, fmt.Errorf("wire: decode ping: %w", err)
		}
	case KindPong:
		f.Pong = &Pong{}
		if err := binary.Unmarshal(body, f.Pong); err != nil {
			return Frame{}, fmt.Errorf("wire: decode pong: %w", err)
		}
	case KindDisconnect:
		f.Disconnect = &Disconnect{}
		if err := binary.Unmarshal(body, f.Disconnect); err != nil {
			return Frame{}, fmt.Errorf("wire: decode disconnect: %w", err)
		}
	default:
		return Frame{}, fmt.Errorf("wire: unknown frame kind %d", kind)
	}
	return f, nil
}
