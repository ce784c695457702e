// Package esbuild drives esbuild for a rig: either a one-shot build or an incremental build that rebuilds whenever
// its sources change while the rig is serving.
package esbuild

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/wprig-go/rig"
	"github.com/swdunlop/wprig-go/rig/hook"
)

// Rig returns a rig option that starts an incremental esbuild build once the rig is listening and disposes of it when
// the rig stops.
func Rig(options ...Option) rig.Option {
	cfg := newConfig(options...)
	return cfg.rigOption
}

// Build runs a single build and returns its result.  Errors reported by esbuild are printed to stderr and returned as
// a BuildError.
func Build(options ...Option) (esbuild.BuildResult, error) {
	cfg := newConfig(options...)
	if err := cfg.check(); err != nil {
		return esbuild.BuildResult{}, err
	}
	ret := esbuild.Build(cfg.build)
	printMessages(os.Stderr, `!!`, ret.Errors)
	printMessages(os.Stderr, `??`, ret.Warnings)
	if len(ret.Errors) > 0 {
		return ret, &BuildError{Messages: ret.Errors}
	}
	return ret, nil
}

// Option is a function that can manipulate the esbuild API build options structure.
type Option func(*config)

type config struct {
	build   esbuild.BuildOptions
	watch   esbuild.WatchOptions
	depends []string
	ctx     esbuild.BuildContext
}

func newConfig(options ...Option) *config {
	cfg := new(config)
	cfg.build.LogLevel = esbuild.LogLevelSilent // messages are printed by printMessages
	cfg.build.Bundle = true
	cfg.build.Write = true
	for _, option := range options {
		option(cfg)
	}
	return cfg
}

func (cfg *config) check() error {
	if cfg.build.Outdir == `` && cfg.build.Outfile == `` {
		return fmt.Errorf(`esbuild: no output directory or file specified`)
	}
	if len(cfg.build.EntryPoints) == 0 && len(cfg.build.EntryPointsAdvanced) == 0 {
		return fmt.Errorf(`esbuild: no entry points specified`)
	}
	return nil
}

func (cfg *config) rigOption(r *rig.Config) error {
	if err := cfg.check(); err != nil {
		return err
	}
	r.Hook(cfg)
	return nil
}

// DependsOn implements hook.Dependent so the build starts after the named hooks are ready.
func (cfg *config) DependsOn() []string { return cfg.depends }

// RigReady implements hook.Ready by creating the esbuild context and starting to watch.  The first build runs in the
// background.
func (cfg *config) RigReady(ctx context.Context, _ net.Addr) error {
	bc, ctxErr := esbuild.Context(cfg.build)
	if ctxErr != nil {
		printMessages(os.Stderr, `!!`, ctxErr.Errors)
		return &BuildError{Messages: ctxErr.Errors}
	}
	if err := bc.Watch(cfg.watch); err != nil {
		bc.Dispose()
		return fmt.Errorf(`%w while starting esbuild watch`, err)
	}
	cfg.ctx = bc
	hog.From(ctx).Debug().Strs(`entryPoints`, cfg.build.EntryPoints).Msg(`esbuild is watching`)
	return nil
}

// RigShutdown implements hook.Shutdown by disposing of the esbuild context.
func (cfg *config) RigShutdown() {
	if cfg.ctx != nil {
		cfg.ctx.Dispose()
		cfg.ctx = nil
	}
}

var (
	_ hook.Ready     = (*config)(nil)
	_ hook.Shutdown  = (*config)(nil)
	_ hook.Dependent = (*config)(nil)
)

// A BuildError holds the errors esbuild reported for a failed build.
type BuildError struct {
	Messages []esbuild.Message
}

func (e *BuildError) Error() string {
	if len(e.Messages) == 0 {
		return `esbuild failed`
	}
	if len(e.Messages) == 1 {
		return `esbuild: ` + e.Messages[0].Text
	}
	return fmt.Sprintf(`esbuild: %s (and %d more errors)`, e.Messages[0].Text, len(e.Messages)-1)
}

// IsBuildError reports whether err is, or wraps, a BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}

// PrintErrors writes esbuild errors to stderr.
func PrintErrors(messages []esbuild.Message) {
	printMessages(os.Stderr, `!!`, messages)
}

func printMessages(w io.Writer, mark string, messages []esbuild.Message) {
	var buf bytes.Buffer
	for i, msg := range messages {
		if i == 0 {
			fmt.Fprintf(&buf, "%s esbuild: ", mark)
		} else {
			fmt.Fprintf(&buf, "   esbuild: ")
		}
		if loc := msg.Location; loc != nil {
			fmt.Fprintf(&buf, "%s:%d:%d: ", loc.File, loc.Line, loc.Column)
		}
		fmt.Fprintf(&buf, "%s\n", strings.ReplaceAll(msg.Text, "\n", "\n            "))
	}
	if buf.Len() > 0 {
		_, _ = w.Write(buf.Bytes())
	}
}

// Output returns an option that sets the output directory for the esbuild build.
func Output(outdir string) Option {
	return func(cfg *config) { cfg.build.Outdir = outdir }
}

// EntryPoint appends entry points to the esbuild build options.
func EntryPoint(entryPoints ...string) Option {
	return func(cfg *config) { cfg.build.EntryPoints = append(cfg.build.EntryPoints, entryPoints...) }
}

// Bundle returns an option that configures esbuild to bundle the output if true, otherwise it will not bundle.
func Bundle(ok bool) Option {
	return func(cfg *config) { cfg.build.Bundle = ok }
}

// Plugin appends esbuild plugins to the build.
func Plugin(plugins ...esbuild.Plugin) Option {
	return func(cfg *config) { cfg.build.Plugins = append(cfg.build.Plugins, plugins...) }
}

// After delays an incremental build until the hooks providing the given names are ready.
func After(names ...string) Option {
	return func(cfg *config) { cfg.depends = append(cfg.depends, names...) }
}

// BuildOption returns an option that can manipulate the esbuild API build options structure.
// See https://esbuild.github.io/api for information on how to use esbuild options.
func BuildOption(fn func(*esbuild.BuildOptions)) Option {
	return func(cfg *config) { fn(&cfg.build) }
}

// WatchOption returns an option that can manipulate the esbuild API watch options structure.
// See https://esbuild.github.io/api for information on how to use esbuild options.
func WatchOption(fn func(*esbuild.WatchOptions)) Option {
	return func(cfg *config) { fn(&cfg.watch) }
}
