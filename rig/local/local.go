// Package local provides dev server listeners on local networks, such as a TCP port or a Unix socket.
package local

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/swdunlop/wprig-go/rig"
	"github.com/swdunlop/wprig-go/rig/hook"
)

// Rig returns a rig.Option that replaces the rig's listener with a local one.
func Rig(options ...Option) rig.Option {
	return func(r *rig.Config) error {
		lc := new(listener)
		for _, option := range options {
			if err := option(lc); err != nil {
				return err
			}
		}
		if lc.network == `` || lc.address == `` {
			return errors.New(`local listeners must configure both network and address`)
		}
		r.Hook(lc)
		return nil
	}
}

// An Option configures a local listener.
type Option func(*listener) error

type listener struct {
	network, address string
	lcf              net.ListenConfig
	retries          int
	socket           string // unix socket to remove on shutdown
}

var (
	_ hook.Listen   = (*listener)(nil)
	_ hook.Shutdown = (*listener)(nil)
)

// TCP listens on a TCP address such as "localhost:5173".
func TCP(address string) Option { return Listen(`tcp`, address) }

// Unix listens on a Unix socket, replacing a stale socket left by an earlier run.  Browsers cannot reach a Unix socket
// directly, so this is only useful behind a proxy that also sets server.hmr.
func Unix(path string) Option { return Listen(`unix`, path) }

// Listen listens on any network supported by net.Listen.
func Listen(network, address string) Option {
	return func(lc *listener) error {
		lc.network, lc.address = network, address
		return nil
	}
}

// NextFree tries up to n following ports when a TCP port is already in use.  The dev server URL follows whichever
// port was bound.
func NextFree(n int) Option {
	return func(lc *listener) error {
		if n < 0 {
			return fmt.Errorf(`cannot try %d more ports`, n)
		}
		lc.retries = n
		return nil
	}
}

// KeepAlive sets the keepalive period for accepted connections.
func KeepAlive(keepalive time.Duration) Option {
	return ListenConfig(func(lcf *net.ListenConfig) { lcf.KeepAlive = keepalive })
}

// ListenConfig adjusts the net.ListenConfig used to listen.
func ListenConfig(options ...func(*net.ListenConfig)) Option {
	return func(lc *listener) error {
		for _, option := range options {
			option(&lc.lcf)
		}
		return nil
	}
}

// Listen implements hook.Listen.
func (lc *listener) Listen(ctx context.Context) (net.Listener, error) {
	switch lc.network {
	case `unix`:
		return lc.listenUnix(ctx)
	case `tcp`, `tcp4`, `tcp6`:
		return lc.listenTCP(ctx)
	}
	return lc.lcf.Listen(ctx, lc.network, lc.address)
}

func (lc *listener) listenTCP(ctx context.Context) (net.Listener, error) {
	host, port, err := net.SplitHostPort(lc.address)
	if err != nil {
		return nil, err
	}
	first, err := strconv.Atoi(port)
	if err != nil || first == 0 {
		return lc.lcf.Listen(ctx, lc.network, lc.address)
	}
	for i := 0; ; i++ {
		address := net.JoinHostPort(host, strconv.Itoa(first+i))
		lr, err := lc.lcf.Listen(ctx, lc.network, address)
		if err == nil || i >= lc.retries || !errors.Is(err, syscall.EADDRINUSE) {
			return lr, err
		}
		zlog.Info().Str(`address`, address).Msg(`port is in use, trying the next one`)
	}
}

func (lc *listener) listenUnix(ctx context.Context) (net.Listener, error) {
	if info, err := os.Lstat(lc.address); err == nil && info.Mode()&os.ModeSocket != 0 {
		// a socket nobody answers on was left behind by a dev server that did not stop cleanly.
		if conn, err := net.Dial(`unix`, lc.address); err == nil {
			conn.Close()
			return nil, fmt.Errorf(`%s is in use by another dev server`, lc.address)
		}
		_ = os.Remove(lc.address)
	}
	lr, err := lc.lcf.Listen(ctx, `unix`, lc.address)
	if err == nil {
		lc.socket = lc.address
	}
	return lr, err
}

// RigShutdown implements hook.Shutdown by removing the Unix socket, if there is one.
func (lc *listener) RigShutdown() {
	if lc.socket != `` {
		_ = os.Remove(lc.socket)
		lc.socket = ``
	}
}
