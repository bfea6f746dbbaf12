package p2p

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandQueuePreservesOrder(t *testing.T) {
	q := newCommandQueue()
	defer q.Close()

	for i := 0; i < 10; i++ {
		q.Send(Command{Kind: CmdConnect, Address: Address(string(rune('a' + i)))})
	}

	for i := 0; i < 10; i++ {
		select {
		case got := <-q.Out():
			assert.Equal(t, Address(string(rune('a'+i))), got.Address)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for queued command")
		}
	}
}

func TestCommandQueueSendNeverBlocksOnConsumer(t *testing.T) {
	q := newCommandQueue()
	defer q.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.Send(Command{Kind: CmdDisconnect})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked despite nobody reading Out()")
	}
}

func TestCommandQueueCloseDrainsThenClosesOut(t *testing.T) {
	q := newCommandQueue()
	q.Send(Command{Kind: CmdConnect})
	q.Send(Command{Kind: CmdDisconnect})
	q.Close()

	first, ok := <-q.Out()
	require.True(t, ok)
	assert.Equal(t, CmdConnect, first.Kind)

	second, ok := <-q.Out()
	require.True(t, ok)
	assert.Equal(t, CmdDisconnect, second.Kind)

	_, ok = <-q.Out()
	assert.False(t, ok)
}
