// Package tailscale serves the dev server on a tailnet, so phones and other machines can load a site's assets from it
// with a valid certificate.
package tailscale

import (
	"context"
	"errors"
	"net"
	"strings"

	zlog "github.com/rs/zerolog/log"
	"github.com/swdunlop/wprig-go/rig"
	"github.com/swdunlop/wprig-go/rig/hook"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"
)

// Rig returns a rig.Option that listens on a tailnet at address, such as ":443".
func Rig(address string, options ...Option) rig.Option {
	return func(r *rig.Config) error {
		var cfg config
		cfg.listen = address
		cfg.tsnet.Logf = func(format string, args ...any) { zlog.Trace().Msgf(format, args...) }
		for _, option := range options {
			err := option(&cfg)
			if err != nil {
				return err
			}
		}
		return cfg.rig(r)
	}
}

type config struct {
	tsnet   tsnet.Server
	funnel  bool
	noTLS   bool
	upHooks []func(*tsnet.Server, *ipnstate.Status) error
	listen  string
}

func (cfg *config) rig(r *rig.Config) error {
	if cfg.funnel && cfg.noTLS {
		return errors.New("funnels are required to use TLS by Tailscale")
	}
	r.Hook(cfg)
	return nil
}

// Listen implements hook.Listen.  The listener reports the tailnet name of this node as its address, so the dev
// server URL written to the hot file matches the certificate Tailscale serves.
func (cfg *config) Listen(ctx context.Context) (net.Listener, error) {
	status, err := cfg.tsnet.Up(ctx)
	if err != nil {
		return nil, err
	}
	for _, fn := range cfg.upHooks {
		err = fn(&cfg.tsnet, status)
		if err != nil {
			_ = cfg.tsnet.Close()
			return nil, err
		}
	}
	var lr net.Listener
	switch {
	case cfg.funnel:
		lr, err = cfg.tsnet.ListenFunnel(`tcp`, cfg.listen)
	case cfg.noTLS:
		lr, err = cfg.tsnet.Listen(`tcp`, cfg.listen)
	default:
		lr, err = cfg.tsnet.ListenTLS(`tcp`, cfg.listen)
	}
	if err != nil {
		_ = cfg.tsnet.Close()
		return nil, err
	}
	name := DNSName(status)
	if name == `` {
		return lr, nil
	}
	zlog.Info().Str(`name`, name).Str(`listen`, cfg.listen).Msg(`listening on tailnet`)
	return &namedListener{Listener: lr, addr: namedAddr{name: name, port: port(lr.Addr(), cfg.listen)}}, nil
}

var _ hook.Listen = (*config)(nil)

// DNSName returns the tailnet name of this node without the trailing dot, or "" if it is not known.
func DNSName(status *ipnstate.Status) string {
	if status == nil || status.Self == nil {
		return ``
	}
	return strings.TrimSuffix(status.Self.DNSName, `.`)
}

func port(addr net.Addr, listen string) string {
	if _, p, err := net.SplitHostPort(addr.String()); err == nil && p != `0` {
		return p
	}
	_, p, _ := net.SplitHostPort(listen)
	return p
}

// namedListener reports a DNS name as its address.
type namedListener struct {
	net.Listener
	addr namedAddr
}

func (lr *namedListener) Addr() net.Addr { return lr.addr }

type namedAddr struct{ name, port string }

func (a namedAddr) Network() string { return `tcp` }
func (a namedAddr) String() string  { return net.JoinHostPort(a.name, a.port) }

// An Option configures the Tailscale node.
type Option func(*config) error

// Dir specifies the state directory of the Tailscale node.
func Dir(dir string) Option {
	return func(cfg *config) error {
		cfg.tsnet.Dir = dir
		return nil
	}
}

// Hostname specifies the name of your Tailscale host.  Defaults to the system hostname.
func Hostname(hostname string) Option {
	return func(cfg *config) error {
		cfg.tsnet.Hostname = hostname
		return nil
	}
}

// Funnel tells Tailscale to allow public IPs to connect to your service.
func Funnel() Option {
	return func(cfg *config) error {
		cfg.funnel = true
		return nil
	}
}

// NoTLS tells Tailscale to not use TLS.  This is incompatible with Funnel.
func NoTLS() Option {
	return func(cfg *config) error {
		cfg.noTLS = true
		return nil
	}
}

// Logf sets the logging function for the Tailscale server.  Tailscale is EXTREMELY chatty, so the default logs at
// the trace level.
func Logf(f func(format string, args ...interface{})) Option {
	return func(cfg *config) error {
		cfg.tsnet.Logf = f
		return nil
	}
}

// HookUp adds a function that will be called when the Tailscale connection is established and authorized.  If the
// hook returns an error, the Tailscale connection will be closed.
func HookUp(fn func(*tsnet.Server, *ipnstate.Status) error) Option {
	return func(cfg *config) error {
		cfg.upHooks = append(cfg.upHooks, fn)
		return nil
	}
}
