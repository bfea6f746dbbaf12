package p2p

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/drep-project/p2p-core/p2p/wire"
)

// peerEventKind tags what kind of thing happened on a peer's connection, for
// the Backend's single event channel from all peer tasks.
type peerEventKind uint8

const (
	peerEvFrame peerEventKind = iota
	peerEvClosed
	peerEvMisbehaved
)

type peerEvent struct {
	peer  PeerId
	kind  peerEventKind
	frame wire.Frame
	err   error
}

// peerCmdKind distinguishes the two things the Backend ever tells a running
// Peer Task to do.
type peerCmdKind uint8

const (
	peerCmdWrite peerCmdKind = iota
	peerCmdDisconnect
)

type peerCommand struct {
	kind  peerCmdKind
	frame wire.Frame
}

// peerTask is the per-connection cooperative driver described in design
// ยง4.3. It owns one FramedConnection and pumps messages in both directions,
// multiplexing on whichever of (wire-readable, command-available,
// ping-due) is ready -- no blocking operation outside those three
// scheduling points.
type peerTask struct {
	id   PeerId
	info PeerInfo
	fc   *FramedConnection
	cfg  *Config
	log  *logrus.Entry

	cmds   chan peerCommand
	events chan<- peerEvent
}

// run is the task's whole lifetime: it returns exactly once, after emitting
// exactly one terminal event (peerEvClosed or peerEvMisbehaved followed by
// peerEvClosed, handled by the Backend).
func (pt *peerTask) run() {
	frameCh := make(chan wire.Frame)
	readErrCh := make(chan error, 1)
	go pt.readLoop(frameCh, readErrCh)

	pingTicker := time.NewTicker(pt.cfg.PingInterval)
	defer pingTicker.Stop()
	defer pt.fc.Close()

	// pingDeadline fires PingTimeout after each ping is sent; a pong that
	// doesn't arrive by then counts as missed independent of when the next
	// PingInterval tick happens to land.
	pingDeadline := time.NewTimer(pt.cfg.PingTimeout)
	if !pingDeadline.Stop() {
		<-pingDeadline.C
	}
	defer pingDeadline.Stop()

	var (
		pingAwait   bool
		pingNonce   uint64
		missedPings int
	)

	for {
		select {
		case cmd := <-pt.cmds:
			switch cmd.kind {
			case peerCmdDisconnect:
				pt.finish(nil)
				return
			case peerCmdWrite:
				if err := pt.fc.WriteFrame(cmd.frame); err != nil {
					pt.finish(err)
					return
				}
			}

		case frame, ok := <-frameCh:
			if !ok {
				continue
			}
			switch frame.Kind {
			case wire.KindPing:
				_ = pt.fc.WriteFrame(wire.Frame{Kind: wire.KindPong, Pong: &wire.Pong{Nonce: frame.Ping.Nonce}})
			case wire.KindPong:
				if pingAwait && frame.Pong != nil && frame.Pong.Nonce == pingNonce {
					pingAwait = false
					missedPings = 0
					if !pingDeadline.Stop() {
						select {
						case <-pingDeadline.C:
						default:
						}
					}
				}
			case wire.KindDisconnect:
				reason := "peer closed the connection"
				if frame.Disconnect != nil {
					reason = frame.Disconnect.Reason
				}
				pt.finish(fmt.Errorf("%s", reason))
				return
			case wire.KindRequest, wire.KindResponse, wire.KindAnnouncement:
				pt.events <- peerEvent{peer: pt.id, kind: peerEvFrame, frame: frame}
			case wire.KindHandshake:
				pt.misbehave(fmt.Errorf("%w: unexpected second handshake", ErrUnexpectedMessage))
				return
			}

		case err := <-readErrCh:
			var tooLarge *MessageTooLargeError
			if errors.As(err, &tooLarge) {
				pt.misbehave(err)
			} else {
				pt.finish(err)
			}
			return

		case <-pingTicker.C:
			if pingAwait {
				// The previous ping is still unanswered; leave its deadline
				// running instead of pushing it back with a new ping.
				continue
			}
			pingNonce++
			pingAwait = true
			pingDeadline.Reset(pt.cfg.PingTimeout)
			if err := pt.fc.WriteFrame(wire.Frame{Kind: wire.KindPing, Ping: &wire.Ping{Nonce: pingNonce}}); err != nil {
				pt.finish(err)
				return
			}

		case <-pingDeadline.C:
			if pingAwait {
				missedPings++
				pingAwait = false
				if missedPings > pt.cfg.PingMaxRetries {
					pt.misbehave(fmt.Errorf("peer unresponsive: %d consecutive missed pings", missedPings))
					return
				}
			}
		}
	}
}

// readLoop is the only goroutine that ever calls fc.ReadFrame; it exists
// because Go has no way to select on "a frame has arrived" without a
// dedicated reader.
func (pt *peerTask) readLoop(out chan<- wire.Frame, errCh chan<- error) {
	for {
		frame, err := pt.fc.ReadFrame()
		if err != nil {
			errCh <- err
			return
		}
		out <- frame
	}
}

func (pt *peerTask) misbehave(err error) {
	pt.log.WithError(err).Warn("peer misbehaved")
	pt.events <- peerEvent{peer: pt.id, kind: peerEvMisbehaved, err: err}
	pt.events <- peerEvent{peer: pt.id, kind: peerEvClosed, err: err}
}

func (pt *peerTask) finish(err error) {
	if err != nil {
		pt.log.WithError(err).Debug("peer connection closed")
	} else {
		pt.log.Debug("peer connection closed")
	}
	pt.events <- peerEvent{peer: pt.id, kind: peerEvClosed, err: err}
}
