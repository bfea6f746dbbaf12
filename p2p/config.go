package p2p

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// Config holds the options recognized by the backend, per the recognized
// options list in the design doc. Mirrors the Default*Config +
// cli.*Flag pattern used throughout the teacher's service packages (e.g.
// pkgs/trace/service.go's DefaultHistoryConfig/EnableTraceFlag).
type Config struct {
	BindAddresses             []Address     `json:"bindAddresses"`
	OutboundConnectionTimeout time.Duration `json:"outboundConnectionTimeout"`
	AnnouncementMaxSize       int           `json:"announcementMaxSize"`
	PingTimeout               time.Duration `json:"pingTimeout"`
	PingInterval              time.Duration `json:"pingInterval"`
	PingMaxRetries            int           `json:"pingMaxRetries"`
	RequestTimeout            time.Duration `json:"requestTimeout"`
}

// DefaultConfig holds the values ConfigFromContext falls back to: 1 MiB
// announcements, a ping every 15s with 20s allowed for each pong.
var DefaultConfig = &Config{
	BindAddresses:             []Address{"0.0.0.0:0"},
	OutboundConnectionTimeout: 10 * time.Second,
	AnnouncementMaxSize:       1 << 20, // 1 MiB
	PingTimeout:               20 * time.Second,
	PingInterval:              15 * time.Second,
	PingMaxRetries:            2,
	RequestTimeout:            10 * time.Second,
}

var (
	BindAddressesFlag = cli.StringSliceFlag{
		Name:  "p2p.bind",
		Usage: "address to listen on for inbound peer connections, may be repeated",
	}
	OutboundTimeoutFlag = cli.DurationFlag{
		Name:  "p2p.outboundtimeout",
		Usage: "time allowed for an outbound dial to complete",
		Value: DefaultConfig.OutboundConnectionTimeout,
	}
	AnnouncementMaxSizeFlag = cli.IntFlag{
		Name:  "p2p.announcementmaxsize",
		Usage: "maximum serialized size, in bytes, of a single announcement",
		Value: DefaultConfig.AnnouncementMaxSize,
	}
	PingIntervalFlag = cli.DurationFlag{
		Name:  "p2p.pinginterval",
		Usage: "interval between liveness pings sent to each peer",
		Value: DefaultConfig.PingInterval,
	}
	PingTimeoutFlag = cli.DurationFlag{
		Name:  "p2p.pingtimeout",
		Usage: "time allowed for a pong to arrive before counting a ping as missed",
		Value: DefaultConfig.PingTimeout,
	}
	PingMaxRetriesFlag = cli.IntFlag{
		Name:  "p2p.pingmaxretries",
		Usage: "consecutive missed pings tolerated before a peer is treated as unresponsive",
		Value: DefaultConfig.PingMaxRetries,
	}
	RequestTimeoutFlag = cli.DurationFlag{
		Name:  "p2p.requesttimeout",
		Usage: "time a frontend should wait for a response before giving up on a request",
		Value: DefaultConfig.RequestTimeout,
	}
)

// Flags is the full flag set a host binary wires into its cli.App.
var Flags = []cli.Flag{
	BindAddressesFlag,
	OutboundTimeoutFlag,
	AnnouncementMaxSizeFlag,
	PingIntervalFlag,
	PingTimeoutFlag,
	PingMaxRetriesFlag,
	RequestTimeoutFlag,
}

// ConfigFromContext builds a Config from a populated cli.Context, falling
// back to DefaultConfig's values for anything left unset.
func ConfigFromContext(ctx *cli.Context) *Config {
	cfg := *DefaultConfig
	if addrs := ctx.StringSlice(BindAddressesFlag.Name); len(addrs) > 0 {
		cfg.BindAddresses = make([]Address, len(addrs))
		for i, a := range addrs {
			cfg.BindAddresses[i] = Address(a)
		}
	}
	if ctx.IsSet(OutboundTimeoutFlag.Name) {
		cfg.OutboundConnectionTimeout = ctx.Duration(OutboundTimeoutFlag.Name)
	}
	if ctx.IsSet(AnnouncementMaxSizeFlag.Name) {
		cfg.AnnouncementMaxSize = ctx.Int(AnnouncementMaxSizeFlag.Name)
	}
	if ctx.IsSet(PingIntervalFlag.Name) {
		cfg.PingInterval = ctx.Duration(PingIntervalFlag.Name)
	}
	if ctx.IsSet(PingTimeoutFlag.Name) {
		cfg.PingTimeout = ctx.Duration(PingTimeoutFlag.Name)
	}
	if ctx.IsSet(PingMaxRetriesFlag.Name) {
		cfg.PingMaxRetries = ctx.Int(PingMaxRetriesFlag.Name)
	}
	if ctx.IsSet(RequestTimeoutFlag.Name) {
		cfg.RequestTimeout = ctx.Duration(RequestTimeoutFlag.Name)
	}
	return &cfg
}
