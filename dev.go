package main

import (
	"context"
	"errors"
	"fmt"

	zlog "github.com/rs/zerolog/log"
	"github.com/swdunlop/wprig-go/rig"
	"github.com/swdunlop/wprig-go/rig/hotfile"
	"github.com/swdunlop/wprig-go/rig/local"
	"github.com/swdunlop/wprig-go/rig/tailscale"
	"github.com/swdunlop/zugzug-go"
	"github.com/swdunlop/zugzug-go/zug/parser"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"
)

func init() {
	tasks = append(tasks, zugzug.Tasks{
		{Name: "dev", Use: "Runs the dev server and writes the hot file for WordPress", Fn: runDev, Parser: parser.New(
			parser.String(&configFile, "config", "c", "The project file holding the plugin and bundler settings"),
			parser.String(&mode, "mode", "m", "The mode used to pick .env files (default: development)"),
		), Settings: listenSettings},
	}...)
}

var listenSettings = zugzug.Settings{
	{Var: &listenNetwork, Name: `LISTEN_NETWORK`,
		Use: "Listening network for the address (default: server.host and server.port from the project file)"},
	{Var: &listenAddress, Name: `LISTEN_ADDRESS`,
		Use: "Listening address for the dev server, required with LISTEN_NETWORK"},

	{Var: &tailscaleHostname, Name: `TAILSCALE_HOSTNAME`,
		Use: "Specifies the hostname on your Tailscale network"},
	{Var: &tailscaleFunnel, Name: `TAILSCALE_FUNNEL`,
		Use: "Enables internet access via a Tailscale funnel"},
	{Var: &tailscaleListen, Name: `TAILSCALE_LISTEN`,
		Use: "Listening address for clients from your Tailscale network (default: \":443\" or \":80\")"},
	{Var: &tailscaleDir, Name: `TAILSCALE_DIR`,
		Use: "State directory for Tailscale"},
	{Var: &noTailscaleTLS, Name: `NO_TAILSCALE_TLS`,
		Use: "Disables TLS for Tailscale"},
}

var (
	listenNetwork string
	listenAddress string

	tailscaleFunnel   bool
	tailscaleHostname string
	tailscaleListen   string
	tailscaleDir      string
	noTailscaleTLS    bool
)

func runDev(ctx context.Context) error {
	// zugzug exits the process when a task fails, so the hot file is removed before the task returns.
	defer hotfile.Process().Shutdown()
	prj, err := loadProject(ctx, `development`)
	if err != nil {
		return err
	}
	options, tailnetTLS, err := listenOptions()
	if err != nil {
		return err
	}
	if tailnetTLS {
		// Tailscale terminates TLS, so the dev server URL must use https.
		https := true
		prj.user.Server.HTTPS = &https
	}
	return prj.plugin.Serve(ctx, prj.user, prj.buildEnv(false), ``, options...)
}

// listenOptions returns the rig options that replace the dev server listener, if any, and whether the listener
// terminates TLS itself.
func listenOptions() ([]rig.Option, bool, error) {
	var tailscaleOptions []tailscale.Option
	useTailscale := tailscaleHostname != `` || tailscaleListen != `` || tailscaleFunnel
	switch {
	case tailscaleFunnel && noTailscaleTLS:
		return nil, false, errors.New("Tailscale funnel requires TLS")
	case tailscaleFunnel && tailscaleListen != ``:
		return nil, false, errors.New("You cannot combine TAILSCALE_FUNNEL with TAILSCALE_LISTEN")
	case tailscaleFunnel:
		tailscaleListen = `:443`
		tailscaleOptions = append(tailscaleOptions, tailscale.Funnel())
	case tailscaleListen != ``:
	case noTailscaleTLS:
		tailscaleListen = `:80`
	default:
		tailscaleListen = `:443`
	}
	if tailscaleHostname != `` {
		tailscaleOptions = append(tailscaleOptions, tailscale.Hostname(tailscaleHostname))
	}
	if noTailscaleTLS {
		tailscaleOptions = append(tailscaleOptions, tailscale.NoTLS())
	}
	if tailscaleDir != `` {
		tailscaleOptions = append(tailscaleOptions, tailscale.Dir(tailscaleDir))
	}
	tailscaleOptions = append(tailscaleOptions, tailscale.HookUp(func(_ *tsnet.Server, status *ipnstate.Status) error {
		zlog.Info().Str(`name`, tailscale.DNSName(status)).Bool(`funnel`, tailscaleFunnel).Msg(`joined tailnet`)
		return nil
	}))
	if useTailscale {
		if listenNetwork != `` {
			return nil, false, errors.New("You cannot combine LISTEN_NETWORK with Tailscale")
		}
		return []rig.Option{tailscale.Rig(tailscaleListen, tailscaleOptions...)}, !noTailscaleTLS, nil
	}

	if listenNetwork == `` {
		if listenAddress != `` {
			listenNetwork = `tcp`
		} else {
			return nil, false, nil // the dev server picks its address from the project file.
		}
	}
	if listenAddress == `` {
		return nil, false, fmt.Errorf(`LISTEN_ADDRESS must be specified with LISTEN_NETWORK`)
	}
	return []rig.Option{local.Rig(local.Listen(listenNetwork, listenAddress))}, false, nil
}
