package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNoiseTransportHandshakeAndRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverT, err := NewNoiseTransport()
	require.NoError(t, err)
	clientT, err := NewNoiseTransport()
	require.NoError(t, err)

	ln, err := serverT.Bind(ctx, []Address{"127.0.0.1:0"})
	require.NoError(t, err)
	defer ln.Close()

	serverAddr := ln.Addresses()[0]

	type acceptResult struct {
		stream Stream
		err    error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		s, _, err := ln.Accept(ctx)
		acceptCh <- acceptResult{s, err}
	}()

	client, err := clientT.Connect(ctx, serverAddr)
	require.NoError(t, err)
	defer client.Close()

	res := <-acceptCh
	require.NoError(t, res.err)
	server := res.stream
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte("hello over noise"))
	}()

	buf := make([]byte, len("hello over noise"))
	n, err := server.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello over noise", string(buf[:n]))
}

func TestNoiseTransportSelfDialDetected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transport, err := NewNoiseTransport()
	require.NoError(t, err)

	ln, err := transport.Bind(ctx, []Address{"127.0.0.1:0"})
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		_, _, _ = ln.Accept(ctx)
	}()

	_, err = transport.Connect(ctx, ln.Addresses()[0])
	require.ErrorIs(t, err, ErrAttemptToDialSelf)
}
