package p2p

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"
)

func TestConfigFromContextFallsBackToDefaults(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	app := cli.NewApp()
	app.Flags = Flags
	ctx := cli.NewContext(app, set, nil)

	cfg := ConfigFromContext(ctx)
	assert.Equal(t, DefaultConfig.PingInterval, cfg.PingInterval)
	assert.Equal(t, DefaultConfig.AnnouncementMaxSize, cfg.AnnouncementMaxSize)
}

func TestConfigFromContextHonorsSetFlags(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags {
		require.NoError(t, f.(interface{ ApplyWithError(*flag.FlagSet) error }).ApplyWithError(set))
	}
	require.NoError(t, set.Parse([]string{
		"-p2p.pinginterval", "5s",
		"-p2p.announcementmaxsize", "2048",
	}))

	app := cli.NewApp()
	app.Flags = Flags
	ctx := cli.NewContext(app, set, nil)

	cfg := ConfigFromContext(ctx)
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
	assert.Equal(t, 2048, cfg.AnnouncementMaxSize)
}
