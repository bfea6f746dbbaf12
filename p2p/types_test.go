package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeerIdIsZero(t *testing.T) {
	var zero PeerId
	assert.True(t, zero.IsZero())
	assert.False(t, NewPeerId().IsZero())
}

func TestVersionCompatible(t *testing.T) {
	v1 := Version{Major: 1, Minor: 2}
	assert.True(t, v1.Compatible(Version{Major: 1, Minor: 9}))
	assert.False(t, v1.Compatible(Version{Major: 2}))
}

func TestPeerInfoHasSubscription(t *testing.T) {
	pi := PeerInfo{Subscriptions: []Topic{TopicBlocks}}
	assert.True(t, pi.HasSubscription(TopicBlocks))
	assert.False(t, pi.HasSubscription(TopicTransactions))
}

func TestTopicString(t *testing.T) {
	assert.Equal(t, "blocks", TopicBlocks.String())
	assert.Equal(t, "transactions", TopicTransactions.String())
	assert.Equal(t, "topic(99)", Topic(99).String())
}

func TestMagicBytesString(t *testing.T) {
	m := MagicBytes{0xde, 0xad, 0xbe, 0xef}
	assert.Equal(t, "deadbeef", m.String())
}
