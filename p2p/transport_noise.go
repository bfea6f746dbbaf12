package p2p

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/flynn/noise"
)

var noiseCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256)

// NoiseTransport is the authenticated/encrypted TCP variant: every stream
// performs a Noise XX handshake (mutual static-key exchange) immediately
// after the raw TCP connection is established, before any Framed Peer
// Connection traffic flows. Observing the locally generated static key
// coming back from the remote side during that handshake is how
// AttemptToDialSelf is detected for this transport, per spec ยง4.1.
type NoiseTransport struct {
	tcp        *TCPTransport
	staticKey  noise.DHKey
	selfPubKey []byte
}

// NewNoiseTransport generates a fresh static keypair for this node and
// returns a transport ready to bind/connect.
func NewNoiseTransport() (*NoiseTransport, error) {
	kp, err := noiseCipherSuite.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("noise: generate static keypair: %w", err)
	}
	return &NoiseTransport{
		tcp:        NewTCPTransport(),
		staticKey:  kp,
		selfPubKey: kp.Public,
	}, nil
}

func (n *NoiseTransport) Bind(ctx context.Context, addresses []Address) (Listener, error) {
	ln, err := n.tcp.Bind(ctx, addresses)
	if err != nil {
		return nil, err
	}
	return &noiseListener{inner: ln, n: n}, nil
}

func (n *NoiseTransport) Connect(ctx context.Context, address Address) (Stream, error) {
	raw, err := n.tcp.Connect(ctx, address)
	if err != nil {
		return nil, err
	}
	stream, err := n.handshake(raw, true)
	if err != nil {
		raw.Close()
		return nil, err
	}
	return stream, nil
}

func (n *NoiseTransport) BannableAddress(address Address) BannableAddress {
	return n.tcp.BannableAddress(address)
}

type noiseListener struct {
	inner Listener
	n     *NoiseTransport
}

func (l *noiseListener) Accept(ctx context.Context) (Stream, Address, error) {
	raw, addr, err := l.inner.Accept(ctx)
	if err != nil {
		return nil, "", err
	}
	stream, err := l.n.handshake(raw, false)
	if err != nil {
		raw.Close()
		return nil, "", err
	}
	return stream, addr, nil
}

func (l *noiseListener) Addresses() []Address { return l.inner.Addresses() }
func (l *noiseListener) Close() error         { return l.inner.Close() }

// handshake runs the Noise XX pattern over raw and wraps it into an
// encrypted stream. initiator must match which side dialed.
func (n *NoiseTransport) handshake(raw Stream, initiator bool) (Stream, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   noiseCipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: n.staticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("noise: init handshake: %w", err)
	}

	var (
		csSend, csRecv *noise.CipherState
		remoteStatic   []byte
	)

	// XX: -> e, <- e ee s es, -> s se  (three messages total)
	if initiator {
		for i := 0; i < 3; i++ {
			if i%2 == 0 {
				out, cs1, cs2, err := hs.WriteMessage(nil, nil)
				if err != nil {
					return nil, fmt.Errorf("noise: write handshake message: %w", err)
				}
				if err := writeFrame(raw, out); err != nil {
					return nil, err
				}
				if cs1 != nil {
					csSend, csRecv = cs1, cs2
				}
			} else {
				in, err := readFrame(raw)
				if err != nil {
					return nil, err
				}
				_, _, _, err = hs.ReadMessage(nil, in)
				if err != nil {
					return nil, fmt.Errorf("noise: read handshake message: %w", err)
				}
			}
		}
	} else {
		for i := 0; i < 3; i++ {
			if i%2 == 0 {
				in, err := readFrame(raw)
				if err != nil {
					return nil, err
				}
				_, cs1, cs2, err := hs.ReadMessage(nil, in)
				if err != nil {
					return nil, fmt.Errorf("noise: read handshake message: %w", err)
				}
				if cs1 != nil {
					csSend, csRecv = cs1, cs2
				}
			} else {
				out, _, _, err := hs.WriteMessage(nil, nil)
				if err != nil {
					return nil, fmt.Errorf("noise: write handshake message: %w", err)
				}
				if err := writeFrame(raw, out); err != nil {
					return nil, err
				}
			}
		}
	}

	remoteStatic = hs.PeerStatic()
	if bytes.Equal(remoteStatic, n.selfPubKey) {
		return nil, ErrAttemptToDialSelf
	}

	if !initiator {
		// Responder's send/recv cipher states come out swapped relative to
		// the initiator's.
		csSend, csRecv = csRecv, csSend
	}

	return &noiseStream{
		raw:  raw,
		send: csSend,
		recv: csRecv,
	}, nil
}

// noiseStream wraps a raw Stream with per-message AEAD framing. It is not
// the same framing as the Framed Peer Connection above it: this layer just
// needs length-prefixed ciphertext records; the Framed Peer Connection's own
// length-prefixed Message frames are the plaintext carried inside.
type noiseStream struct {
	raw  Stream
	send *noise.CipherState
	recv *noise.CipherState

	readBuf bytes.Buffer
}

func (s *noiseStream) Read(p []byte) (int, error) {
	if s.readBuf.Len() == 0 {
		ct, err := readFrame(s.raw)
		if err != nil {
			return 0, err
		}
		pt, err := s.recv.Decrypt(nil, nil, ct)
		if err != nil {
			return 0, fmt.Errorf("noise: decrypt: %w", err)
		}
		s.readBuf.Write(pt)
	}
	return s.readBuf.Read(p)
}

func (s *noiseStream) Write(p []byte) (int, error) {
	ct := s.send.Encrypt(nil, nil, p)
	if err := writeFrame(s.raw, ct); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *noiseStream) Close() error           { return s.raw.Close() }
func (s *noiseStream) LocalAddress() Address  { return s.raw.LocalAddress() }
func (s *noiseStream) RemoteAddress() Address { return s.raw.RemoteAddress() }

func writeFrame(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("noise: write frame length: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("noise: write frame body: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
