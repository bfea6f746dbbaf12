package p2p

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// ChannelTransport is an in-process, multi-producer single-consumer
// transport used for deterministic tests: Connect/Accept never touch a real
// socket, so scenarios run instantly and without port contention.
//
// A single ChannelTransport instance is shared by every node in a test; each
// node registers the address it "binds" and other nodes dial it by looking
// it up in the shared registry.
type ChannelTransport struct {
	mu        sync.Mutex
	listeners map[Address]*channelListener
	seq       int
}

// NewChannelTransport returns a transport; share one instance across all
// nodes that should be able to reach each other.
func NewChannelTransport() *ChannelTransport {
	return &ChannelTransport{listeners: make(map[Address]*channelListener)}
}

func (c *ChannelTransport) Bind(ctx context.Context, addresses []Address) (Listener, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(addresses) == 0 {
		return nil, ErrNoAddresses
	}
	addr := addresses[0]
	if addr == "" || addr == "0" {
		c.seq++
		addr = Address(fmt.Sprintf("chan:%d", c.seq))
	}
	if _, exists := c.listeners[addr]; exists {
		return nil, &BindFailureError{Address: addr, Cause: fmt.Errorf("address in use")}
	}
	l := &channelListener{addr: addr, incoming: make(chan acceptedConn, 16)}
	c.listeners[addr] = l
	return l, nil
}

func (c *ChannelTransport) Connect(ctx context.Context, address Address) (Stream, error) {
	c.mu.Lock()
	l, ok := c.listeners[address]
	c.mu.Unlock()
	if !ok {
		return nil, ErrConnectionRefusedOrTimedOut
	}

	c.mu.Lock()
	c.seq++
	dialerAddr := Address(fmt.Sprintf("chan:dialer:%d", c.seq))
	c.mu.Unlock()

	a, b := newPipe(dialerAddr, address)
	select {
	case l.incoming <- acceptedConn{stream: b, remote: dialerAddr}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return a, nil
}

func (c *ChannelTransport) BannableAddress(address Address) BannableAddress {
	return BannableAddress(address)
}

type acceptedConn struct {
	stream Stream
	remote Address
}

type channelListener struct {
	addr     Address
	incoming chan acceptedConn
	closeMu  sync.Mutex
	closed   bool
}

func (l *channelListener) Accept(ctx context.Context) (Stream, Address, error) {
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case c, ok := <-l.incoming:
		if !ok {
			return nil, "", io.EOF
		}
		return c.stream, c.remote, nil
	}
}

func (l *channelListener) Addresses() []Address { return []Address{l.addr} }

func (l *channelListener) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.incoming)
	}
	return nil
}

// pipeEnd is one side of an in-memory, io.Pipe-backed duplex stream.
type pipeEnd struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	local  Address
	remote Address
}

func newPipe(aAddr, bAddr Address) (Stream, Stream) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := &pipeEnd{r: ar, w: aw, local: aAddr, remote: bAddr}
	b := &pipeEnd{r: br, w: bw, local: bAddr, remote: aAddr}
	return a, b
}

func (p *pipeEnd) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeEnd) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipeEnd) Close() error {
	_ = p.r.Close()
	_ = p.w.Close()
	return nil
}
func (p *pipeEnd) LocalAddress() Address  { return p.local }
func (p *pipeEnd) RemoteAddress() Address { return p.remote }
