// Package rig manages a configuration of HTTP handlers rigged together around a dev server.  Options contribute hooks
// that shape the listener, server and multiplexer, learn when the listener is ready and clean up when the rig stops.
package rig

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/wprig-go/rig/hook"
	"github.com/swdunlop/wprig-go/rig/watcher"
)

func init() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: `2006-01-02 15:04:05`}).With().Timestamp().Logger()
	zlog.Logger = log
	zerolog.DefaultContextLogger = &log
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// Main is intended to be used as your main function and will serve a rig with the given options until the process is
// interrupted or terminated.
func Main(listenAddress string, options ...Option) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return Serve(ctx, listenAddress, options...)
}

// Serve will serve the configured rig at the specified address until the context is cancelled.
func Serve(ctx context.Context, address string, options ...Option) error {
	cfg, err := New(options...)
	if err != nil {
		return err
	}
	return cfg.Serve(ctx, address)
}

// New returns a new rig configuration.
func New(options ...Option) (*Config, error) {
	cfg := new(Config)
	err := cfg.Apply(options...)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// A Config is a rig configuration.
type Config struct {
	serve   bool            // true once Serve has been called
	serving bool            // true after Serve has been called and before it returns
	hooks   []any           // hooks to apply
	done    <-chan struct{} // closed when the rig starts to shut down
	watch   []watch
}

type watch struct {
	dir      string
	patterns []string
	fn       func(name string)
}

// Done returns a channel that will be closed when the rig starts to shut down.  This is nil unless the rig has been
// started with a context.
func (cfg *Config) Done() <-chan struct{} {
	return cfg.done
}

// Hook adds hooks to the configuration, see the hook package for interfaces that hooks can implement.  This is
// normally done by various options.
func (cfg *Config) Hook(hooks ...any) {
	cfg.hooks = append(cfg.hooks, hooks...)
}

// Apply applies the given options to the config; should not be called after Serve.
func (cfg *Config) Apply(options ...Option) error {
	if cfg.serving {
		return errors.New(`cannot apply options while a rig is running`)
	} else if cfg.serve {
		return errors.New(`cannot apply options after a rig has been run`)
	}

	for _, option := range options {
		err := option(cfg)
		if err != nil {
			return err
		}
	}
	return nil
}

// Serve will run the configured rig as a server listening to the provided address until the context is cancelled.
// If a hook implements hook.Listen, its listener is used instead and the address is ignored.
func (cfg *Config) Serve(ctx context.Context, address string) error {
	cfg.serve = true
	cfg.serving = true

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cfg.done = ctx.Done()
	defer func() { cfg.done, cfg.serving = nil, false }()

	hooks := hook.Order(cfg.hooks...)
	defer shutdown(hooks)

	var mux http.ServeMux
	for _, it := range hooks {
		if impl, ok := it.(hook.Mux); ok {
			impl.RigMux(&mux)
		}
	}

	var svr http.Server
	svr.Handler = &mux
	for _, it := range hooks {
		if impl, ok := it.(hook.Server); ok {
			impl.RigServer(&svr)
		}
	}

	lr, err := listen(ctx, hooks, address)
	if err != nil {
		return err
	}
	if svr.TLSConfig != nil {
		lr = tls.NewListener(lr, svr.TLSConfig)
	}
	// no need to defer lr.Close, svr.Shutdown will close it

	for _, it := range hooks {
		if impl, ok := it.(hook.Ready); ok {
			err = impl.RigReady(ctx, lr.Addr())
			if err != nil {
				_ = lr.Close()
				return err
			}
		}
	}

	for _, w := range cfg.watch {
		err = startWatch(ctx, w)
		if err != nil {
			_ = lr.Close()
			return err
		}
	}

	go func() {
		<-ctx.Done()
		svr.Shutdown(context.Background())
	}()

	hog.From(ctx).Info().Str(`address`, lr.Addr().String()).Msg(`starting HTTP service`)
	err = svr.Serve(lr)
	hog.From(ctx).Info().Err(err).Msg(`HTTP service stopped`)
	if err == http.ErrServerClosed {
		return nil
	}
	_ = lr.Close() // just in case, since we did not have a shutdown or server close.
	return err
}

func listen(ctx context.Context, hooks []any, address string) (net.Listener, error) {
	for _, it := range hooks {
		if impl, ok := it.(hook.Listen); ok {
			return impl.Listen(ctx)
		}
	}
	var lcf net.ListenConfig
	for _, it := range hooks {
		if impl, ok := it.(hook.Listener); ok {
			impl.RigListener(&lcf)
		}
	}
	return lcf.Listen(ctx, `tcp`, address)
}

func shutdown(hooks []any) {
	for i := len(hooks) - 1; i >= 0; i-- {
		if impl, ok := hooks[i].(hook.Shutdown); ok {
			impl.RigShutdown()
		}
	}
}

// Watch will call fn with the name of any file in the given directory that changes and matches the given glob
// patterns while the rig is serving.  This is normally done by various options like the WordPress refresh triggers.
func (cfg *Config) Watch(fn func(name string), dir string, patterns ...string) error {
	if fn == nil {
		return errors.New(`cannot watch without a function to call`)
	}
	cfg.watch = append(cfg.watch, watch{dir, patterns, fn})
	return nil
}

func startWatch(ctx context.Context, w watch) error {
	wr, err := watcher.Start(watcher.Directory(w.dir), watcher.Include(w.patterns...))
	if err != nil {
		return err
	}
	go func() {
		defer wr.Shutdown()
		for {
			select {
			case <-ctx.Done():
				return
			case name := <-wr.Alert():
				w.fn(name)
			}
		}
	}()
	return nil
}

// An Option is a function that modifies a Config before it is served.
type Option func(*Config) error

// Apply combines several options into one.
func Apply(options ...Option) Option {
	return func(cfg *Config) error {
		return cfg.Apply(options...)
	}
}
