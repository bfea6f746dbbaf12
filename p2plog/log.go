// Package p2plog centralizes the logrus field conventions used across the
// p2p backend, so components don't each invent their own key names.
package p2plog

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var base = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return l
}()

// SetLevel adjusts the verbosity of every logger returned by New.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// New returns a logger entry tagged with the owning component's name.
func New(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// WithPeer tags an entry with the peer it concerns.
func WithPeer(entry *logrus.Entry, peerID fmt.Stringer) *logrus.Entry {
	return entry.WithField("peer_id", peerID.String())
}
