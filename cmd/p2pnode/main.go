// Command p2pnode is a minimal host binary wiring the p2p backend's config
// flags, logging, and service handles together -- enough to dial a peer and
// log the connectivity and syncing events it observes. It does not read
// stdin and makes no announcements. It exists to exercise the ambient stack
// end to end, not as a production node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/drep-project/p2p-core/p2p"
	"github.com/drep-project/p2p-core/p2plog"
)

var (
	magicFlag = cli.StringFlag{
		Name:  "p2p.magic",
		Usage: "4-byte network magic, hex-encoded (e.g. 1a2b3c4d)",
		Value: "1a2b3c4d",
	}
	dialFlag = cli.StringFlag{
		Name:  "p2p.dial",
		Usage: "address to dial on startup, may be empty",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "p2pnode"
	app.Usage = "run a p2p-core backend node"
	app.Flags = append(p2p.Flags, magicFlag, dialFlag)
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	log := p2plog.New("p2pnode")

	magic, err := parseMagic(ctx.String(magicFlag.Name))
	if err != nil {
		return err
	}

	cfg := p2p.ConfigFromContext(ctx)
	identity := p2p.LocalIdentity{
		Network:       magic,
		Version:       p2p.Version{Major: 0, Minor: 1, Patch: 0},
		Subscriptions: []p2p.Topic{p2p.TopicBlocks, p2p.TopicTransactions},
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := p2p.NewTCPTransport()
	node, err := p2p.Start(runCtx, transport, cfg, identity)
	if err != nil {
		return fmt.Errorf("start backend: %w", err)
	}
	log.WithField("addrs", node.Connectivity.LocalAddresses()).Info("listening")

	if dial := ctx.String(dialFlag.Name); dial != "" {
		if err := node.Connectivity.Connect(p2p.Address(dial)); err != nil {
			log.WithError(err).Error("dial failed")
		}
	}

	go func() {
		for {
			ev, err := node.Connectivity.PollNext(runCtx)
			if err != nil {
				return
			}
			log.WithField("event", ev.Kind).WithField("peer", ev.PeerId).Info("connectivity event")
		}
	}()
	go func() {
		for {
			ev, err := node.Syncing.PollNext(runCtx)
			if err != nil {
				return
			}
			log.WithField("event", ev.Kind).WithField("peer", ev.PeerId).Info("syncing event")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	node.Stop()
	return nil
}

func parseMagic(s string) (p2p.MagicBytes, error) {
	var m p2p.MagicBytes
	if len(s) != 8 {
		return m, fmt.Errorf("p2p.magic must be 8 hex characters, got %q", s)
	}
	for i := 0; i < 4; i++ {
		var b int
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return m, fmt.Errorf("p2p.magic: invalid hex: %w", err)
		}
		m[i] = byte(b)
	}
	return m, nil
}
