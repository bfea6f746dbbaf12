package p2p

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/drep-project/p2p-core/p2p/wire"
	"github.com/drep-project/p2p-core/p2plog"
)

// peerHandle is what the Backend keeps per live peer: its handshake result,
// the dialed/accepted address, and the command channel its Peer Task reads
// from.
type peerHandle struct {
	info    PeerInfo
	address Address
	cmds    chan peerCommand
}

// connResult is what both the accept loop and an outbound dial attempt
// report back to the Backend's single select loop.
type connResult struct {
	inbound bool
	address Address
	stream  Stream
	info    PeerInfo
	err     error
}

// Backend is the single-threaded cooperative event loop described in design
// ยง4.5: it owns the Listener, every live Peer Task, and the RequestManager,
// and fans commands from the two frontend handles to peer tasks while
// fanning peer-task events back up into the connectivity and syncing event
// streams.
type Backend struct {
	transport Transport
	cfg       *Config
	identity  LocalIdentity
	log       *logrus.Entry

	reqmgr *RequestManager
	peers  map[PeerId]*peerHandle

	cmdQueue   *commandQueue
	peerEvents chan peerEvent
	connResult chan connResult

	connEvents chan<- ConnectivityEvent
	syncEvents chan<- SyncingEvent

	listener Listener

	closeOnce sync.Once
	acceptors *errgroup.Group
}

// NewBackend wires a Backend around transport, ready to Run once bound.
func NewBackend(transport Transport, cfg *Config, identity LocalIdentity, connEvents chan<- ConnectivityEvent, syncEvents chan<- SyncingEvent) *Backend {
	return &Backend{
		transport:  transport,
		cfg:        cfg,
		identity:   identity,
		log:        p2plog.New("p2p.backend"),
		reqmgr:     NewRequestManager(),
		peers:      make(map[PeerId]*peerHandle),
		cmdQueue:   newCommandQueue(),
		peerEvents: make(chan peerEvent, 64),
		connResult: make(chan connResult, 8),
		connEvents: connEvents,
		syncEvents: syncEvents,
	}
}

// Submit enqueues a command from a frontend handle. Never blocks beyond the
// queue pump accepting it.
func (b *Backend) Submit(cmd Command) { b.cmdQueue.Send(cmd) }

// LocalAddresses reports the actual bound addresses, valid after Bind.
func (b *Backend) LocalAddresses() []Address {
	if b.listener == nil {
		return nil
	}
	return b.listener.Addresses()
}

// Bind starts listening. It must be called before Run.
func (b *Backend) Bind(ctx context.Context) error {
	ln, err := b.transport.Bind(ctx, b.cfg.BindAddresses)
	if err != nil {
		return err
	}
	b.listener = ln
	return nil
}

// Run is the main loop. It returns when ctx is cancelled, after disconnecting
// every live peer and emitting its ConnectionClosed.
func (b *Backend) Run(ctx context.Context) {
	b.log.WithField("addrs", b.listener.Addresses()).Info("backend started")

	acceptCtx, cancelAccept := context.WithCancel(ctx)
	defer cancelAccept()
	g, gctx := errgroup.WithContext(acceptCtx)
	b.acceptors = g
	g.Go(func() error {
		b.acceptLoop(gctx)
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			cancelAccept()
			b.shutdown()
			return

		case res := <-b.connResult:
			b.handleConnResult(res)

		case cmd, ok := <-b.cmdQueue.Out():
			if !ok {
				b.shutdown()
				return
			}
			b.handleCommand(ctx, cmd)

		case ev := <-b.peerEvents:
			b.handlePeerEvent(ev)
		}
	}
}

func (b *Backend) acceptLoop(ctx context.Context) {
	for {
		stream, addr, err := b.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrAttemptToDialSelf) {
				// A transport (e.g. Noise, comparing static keys) rejected a
				// real loopback connection on the listening side; surface it
				// like any other failed inbound the same way handleInbound
				// does, instead of silently swallowing it as a transient
				// accept error.
				b.connResult <- connResult{inbound: true, address: addr, err: err}
				continue
			}
			b.log.WithError(err).Debug("listener accept error")
			continue
		}
		go b.handleInbound(ctx, stream, addr)
	}
}

func (b *Backend) handleInbound(ctx context.Context, stream Stream, addr Address) {
	fc := NewFramedConnection(stream, b.cfg.AnnouncementMaxSize+frameHeaderAllowance)
	info, err := performHandshake(ctx, fc, b.identity, addr)
	if err != nil {
		fc.Close()
		b.connResult <- connResult{inbound: true, address: addr, err: err}
		return
	}
	b.connResult <- connResult{inbound: true, address: addr, stream: fc.stream, info: info}
}

func (b *Backend) handleConnResult(res connResult) {
	if res.err != nil {
		if errors.Is(res.err, ErrAttemptToDialSelf) {
			// A self-dial caught by address equality in handleConnect never
			// reaches here at all. This path is for one genuinely caught by
			// the transport itself (e.g. Noise comparing static keys after a
			// real loopback connection forms): only the dialing half is the
			// caller's own request, so only it gets a ConnectionError; both
			// halves still get their ConnectionClosed.
			if !res.inbound {
				b.emitConnError(res.address, res.err)
			}
			b.emitConnClosed(NewPeerId())
			return
		}
		b.emitConnError(res.address, res.err)
		return
	}

	peerID := res.info.PeerId
	fc := NewFramedConnection(res.stream, b.cfg.AnnouncementMaxSize+frameHeaderAllowance)

	if err := b.reqmgr.RegisterPeer(peerID); err != nil {
		b.log.WithError(err).Error("peer id collision, dropping connection")
		fc.Close()
		return
	}

	cmds := make(chan peerCommand, 32)
	b.peers[peerID] = &peerHandle{info: res.info, address: res.address, cmds: cmds}

	plog := p2plog.WithPeer(p2plog.New("p2p.peer"), peerID)
	task := &peerTask{id: peerID, info: res.info, fc: fc, cfg: b.cfg, log: plog, cmds: cmds, events: b.peerEvents}
	go task.run()

	if res.inbound {
		b.connEvents <- ConnectivityEvent{Kind: EvInboundAccepted, PeerId: peerID, Address: res.address, PeerInfo: res.info}
	} else {
		b.connEvents <- ConnectivityEvent{Kind: EvOutboundAccepted, PeerId: peerID, Address: res.address, PeerInfo: res.info}
	}
}

func (b *Backend) handleCommand(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CmdConnect:
		b.handleConnect(ctx, cmd.Address)

	case CmdDisconnect:
		if peer, ok := b.peers[cmd.PeerId]; ok {
			peer.cmds <- peerCommand{kind: peerCmdDisconnect}
		}

	case CmdSendRequest:
		if peer, ok := b.peers[cmd.PeerId]; ok {
			frame := b.reqmgr.MakeRequest(cmd.RequestId, cmd.Category, cmd.Payload)
			peer.cmds <- peerCommand{kind: peerCmdWrite, frame: frame}
		}

	case CmdSendResponse:
		peerID, frame, ok := b.reqmgr.MakeResponse(cmd.RequestId, cmd.Category, cmd.Payload)
		if !ok {
			return // ephemeral unknown: peer gone or already answered, drop silently
		}
		if peer, ok := b.peers[peerID]; ok {
			peer.cmds <- peerCommand{kind: peerCmdWrite, frame: frame}
		}

	case CmdAnnounceData:
		if len(cmd.Payload) > b.cfg.AnnouncementMaxSize {
			// Caller should have validated this at the handle before
			// reaching here; defensively drop rather than crash the loop.
			b.log.WithField("size", len(cmd.Payload)).Warn("dropping oversized announcement reaching the backend")
			return
		}
		frame := wire.Frame{Kind: wire.KindAnnouncement, Announcement: &wire.Announcement{Topic: uint8(cmd.Topic), Payload: cmd.Payload}}
		for _, peer := range b.peers {
			if peer.info.HasSubscription(cmd.Topic) {
				peer.cmds <- peerCommand{kind: peerCmdWrite, frame: frame}
			}
		}
	}
}

func (b *Backend) handleConnect(ctx context.Context, addr Address) {
	if b.isSelfAddress(addr) {
		b.emitConnError(addr, ErrAttemptToDialSelf)
		b.emitConnClosed(NewPeerId()) // dialing half, never established
		b.emitConnClosed(NewPeerId()) // listening half, never established
		return
	}
	go b.dial(ctx, addr)
}

func (b *Backend) isSelfAddress(addr Address) bool {
	for _, own := range b.LocalAddresses() {
		if own == addr {
			return true
		}
	}
	return false
}

func (b *Backend) dial(ctx context.Context, addr Address) {
	dialCtx, cancel := context.WithTimeout(ctx, b.cfg.OutboundConnectionTimeout)
	defer cancel()

	stream, err := b.transport.Connect(dialCtx, addr)
	if err != nil {
		if errors.Is(err, ErrAttemptToDialSelf) {
			b.connResult <- connResult{inbound: false, address: addr, err: err}
			return
		}
		if dialCtx.Err() != nil {
			err = ErrConnectionRefusedOrTimedOut
		}
		b.connResult <- connResult{inbound: false, address: addr, err: err}
		return
	}

	fc := NewFramedConnection(stream, b.cfg.AnnouncementMaxSize+frameHeaderAllowance)
	info, err := performHandshake(dialCtx, fc, b.identity, addr)
	if err != nil {
		fc.Close()
		b.connResult <- connResult{inbound: false, address: addr, err: err}
		return
	}
	b.connResult <- connResult{inbound: false, address: addr, stream: fc.stream, info: info}
}

func (b *Backend) handlePeerEvent(ev peerEvent) {
	peer, ok := b.peers[ev.peer]
	if !ok {
		return // stray event from an already-closed peer; drop per ยง4.5
	}

	switch ev.kind {
	case peerEvFrame:
		b.handleWireFrame(ev.peer, peer, ev.frame)

	case peerEvMisbehaved:
		b.connEvents <- ConnectivityEvent{Kind: EvMisbehaved, PeerId: ev.peer, Error: ev.err}

	case peerEvClosed:
		b.reqmgr.UnregisterPeer(ev.peer)
		delete(b.peers, ev.peer)
		b.connEvents <- ConnectivityEvent{Kind: EvConnectionClosed, PeerId: ev.peer, Error: ev.err}
	}
}

func (b *Backend) handleWireFrame(peerID PeerId, peer *peerHandle, frame wire.Frame) {
	switch frame.Kind {
	case wire.KindRequest:
		req := frame.Request
		ephemeral, err := b.reqmgr.RegisterRequest(peerID, requestIDFromBytes(req.RequestID))
		if err != nil {
			b.log.WithError(err).Error("register_request failed for a live peer")
			return
		}
		b.dispatchRequest(peerID, ephemeral, req.Category, req.Payload)

	case wire.KindResponse:
		resp := frame.Response
		b.dispatchResponse(peerID, requestIDFromBytes(resp.RequestID), resp.Category, resp.Payload)

	case wire.KindAnnouncement:
		ann := frame.Announcement
		b.syncEvents <- SyncingEvent{Kind: EvAnnouncement, PeerId: peerID, Topic: Topic(ann.Topic), Payload: ann.Payload}
	}
}

func (b *Backend) dispatchRequest(peerID PeerId, requestID RequestId, category wire.Category, payload []byte) {
	switch category {
	case wire.CategoryConnectivity:
		b.connEvents <- ConnectivityEvent{Kind: EvRequest, PeerId: peerID, RequestId: requestID, Payload: payload}
	case wire.CategorySyncing:
		b.syncEvents <- SyncingEvent{Kind: EvSyncRequest, PeerId: peerID, RequestId: requestID, Payload: payload}
	}
}

func (b *Backend) dispatchResponse(peerID PeerId, requestID RequestId, category wire.Category, payload []byte) {
	switch category {
	case wire.CategoryConnectivity:
		b.connEvents <- ConnectivityEvent{Kind: EvResponse, PeerId: peerID, RequestId: requestID, Payload: payload}
	case wire.CategorySyncing:
		b.syncEvents <- SyncingEvent{Kind: EvSyncResponse, PeerId: peerID, RequestId: requestID, Payload: payload}
	}
}

func (b *Backend) emitConnError(addr Address, err error) {
	b.connEvents <- ConnectivityEvent{Kind: EvConnectionError, Address: addr, Error: err}
}

func (b *Backend) emitConnClosed(peerID PeerId) {
	b.connEvents <- ConnectivityEvent{Kind: EvConnectionClosed, PeerId: peerID}
}

// shutdown disconnects every live peer (emitting its ConnectionClosed),
// closes the listener, and waits for
// the accept-loop goroutine to actually exit before returning -- using an
// errgroup rather than a bare WaitGroup so a future accept-loop error path
// has somewhere to report to.
func (b *Backend) shutdown() {
	b.closeOnce.Do(func() {
		for id, peer := range b.peers {
			peer.cmds <- peerCommand{kind: peerCmdDisconnect}
			b.reqmgr.UnregisterPeer(id)
			delete(b.peers, id)
			b.emitConnClosed(id)
		}
		if b.listener != nil {
			_ = b.listener.Close()
		}
		if b.acceptors != nil {
			_ = b.acceptors.Wait()
		}
		b.cmdQueue.Close()
		b.log.Info("backend stopped")
	})
}
