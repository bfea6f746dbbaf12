package p2p

import (
	"context"
	"net"
	"strings"
)

// TCPTransport is the plain, unauthenticated TCP transport variant. It
// mirrors the teacher's net.Listen/net.Dial usage in
// (*Server).setupListening and (*Server).SetupConn, minus the RLPx
// encryption handshake layered on top there -- that lives in the Noise
// variant instead.
type TCPTransport struct {
	selfAddrs map[string]struct{}
}

// NewTCPTransport returns a ready-to-use TCP transport.
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{selfAddrs: make(map[string]struct{})}
}

func (t *TCPTransport) Bind(ctx context.Context, addresses []Address) (Listener, error) {
	if len(addresses) == 0 {
		return nil, ErrNoAddresses
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", string(addresses[0]))
	if err != nil {
		return nil, &BindFailureError{Address: addresses[0], Cause: err}
	}
	local := Address(ln.Addr().String())
	t.selfAddrs[local.String()] = struct{}{}
	t.selfAddrs[replacePortZeroHost(local.String())] = struct{}{}
	return &tcpListener{ln: ln, addrs: []Address{local}}, nil
}

func (t *TCPTransport) Connect(ctx context.Context, address Address) (Stream, error) {
	if _, ok := t.selfAddrs[address.String()]; ok {
		return nil, ErrAttemptToDialSelf
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", string(address))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrConnectionRefusedOrTimedOut
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrConnectionRefusedOrTimedOut
		}
		return nil, ErrConnectionRefusedOrTimedOut
	}
	return &tcpStream{Conn: conn}, nil
}

func (t *TCPTransport) BannableAddress(address Address) BannableAddress {
	host, _, err := net.SplitHostPort(string(address))
	if err != nil {
		return BannableAddress(address)
	}
	return BannableAddress(host)
}

func replacePortZeroHost(addr string) string {
	// Helps self-dial detection match "127.0.0.1:PORT" against
	// "0.0.0.0:PORT"- or "[::]:PORT"-style bind addresses.
	switch {
	case strings.HasPrefix(addr, "0.0.0.0:"):
		return "127.0.0.1:" + strings.TrimPrefix(addr, "0.0.0.0:")
	case strings.HasPrefix(addr, "[::]:"):
		return "127.0.0.1:" + strings.TrimPrefix(addr, "[::]:")
	default:
		return addr
	}
}

type tcpListener struct {
	ln    net.Listener
	addrs []Address
}

func (l *tcpListener) Accept(ctx context.Context) (Stream, Address, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, "", r.err
		}
		return &tcpStream{Conn: r.conn}, Address(r.conn.RemoteAddr().String()), nil
	}
}

func (l *tcpListener) Addresses() []Address { return l.addrs }
func (l *tcpListener) Close() error         { return l.ln.Close() }

type tcpStream struct {
	net.Conn
}

func (s *tcpStream) LocalAddress() Address  { return Address(s.Conn.LocalAddr().String()) }
func (s *tcpStream) RemoteAddress() Address { return Address(s.Conn.RemoteAddr().String()) }
