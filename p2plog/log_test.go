package p2plog

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeStringer struct{ s string }

func (f fakeStringer) String() string { return f.s }

func TestNewTagsComponent(t *testing.T) {
	entry := New("p2p.backend")
	assert.Equal(t, "p2p.backend", entry.Data["component"])
}

func TestWithPeerTagsPeerID(t *testing.T) {
	entry := WithPeer(New("p2p.peer"), fakeStringer{"peer-123"})
	assert.Equal(t, "peer-123", entry.Data["peer_id"])
}

func TestSetLevel(t *testing.T) {
	SetLevel(logrus.DebugLevel)
	assert.Equal(t, logrus.DebugLevel, base.GetLevel())
	SetLevel(logrus.InfoLevel)
}
