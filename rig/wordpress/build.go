package wordpress

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/wprig-go/rig"
	"github.com/swdunlop/wprig-go/rig/envgate"
	esbuildrig "github.com/swdunlop/wprig-go/rig/esbuild"
)

// Build runs a browser build, or a server-side rendering build if env.IsSSRBuild, writing the output and its
// manifest below the public directory.
func (p *Plugin) Build(ctx context.Context, user BundlerConfig, env BuildEnv) error {
	env.Command = envgate.Build
	o, err := p.Config(user, env)
	if err != nil {
		return err
	}
	resolved := p.Resolve(env, o)
	p.ConfigResolved(resolved)

	if err := EnsurePublicDirectory(p.root, p.cfg); err != nil {
		return err
	}
	outDir := p.path(o.Build.OutDir)
	if o.Build.EmptyOutDir {
		if err := emptyDir(outDir); err != nil {
			return err
		}
	}

	result, err := esbuildrig.Build(esbuildrig.BuildOption(func(opts *esbuild.BuildOptions) { *opts = resolved.Options }))
	if err != nil {
		return err
	}
	if o.Build.Manifest != `` {
		manifest, err := BuildManifest(result.Metafile, filepath.FromSlash(o.Build.OutDir))
		if err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(outDir, filepath.FromSlash(o.Build.Manifest)), manifest); err != nil {
			return err
		}
	}
	if o.Build.SSRManifest != `` {
		manifest, err := BuildSSRManifest(result.Metafile, filepath.FromSlash(o.Build.OutDir))
		if err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(outDir, filepath.FromSlash(o.Build.SSRManifest)), manifest); err != nil {
			return err
		}
	}
	hog.From(ctx).Info().
		Str(`outDir`, outDir).
		Bool(`ssr`, env.IsSSRBuild).
		Int(`files`, len(result.OutputFiles)).
		Msg(`build finished`)
	return nil
}

// emptyDir removes everything in dir except version control metadata, creating dir if it is missing.
func emptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	} else if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == `.git` {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Serve runs the dev server until ctx is cancelled.  If address is empty, the dev server listens on server.host and
// server.port, defaulting to localhost:5173.  Options can replace the listener, such as with the local or tailscale
// packages.
func (p *Plugin) Serve(ctx context.Context, user BundlerConfig, env BuildEnv, address string, options ...rig.Option) error {
	env.Command = envgate.Serve
	o, err := p.Config(user, env)
	if err != nil {
		return err
	}
	p.ConfigResolved(p.Resolve(env, o))
	if err := EnsurePublicDirectory(p.root, p.cfg); err != nil {
		return err
	}

	if address == `` {
		address = ListenAddress(o.Server)
	}
	cfg, err := rig.New(options...)
	if err != nil {
		return err
	}
	if err := p.ConfigureServer(cfg); err != nil {
		return err
	}
	return cfg.Serve(ctx, address)
}

// ListenAddress returns the address the dev server listens on for the given settings.
func ListenAddress(s ServerOverlay) string {
	host, port := s.Host, s.Port
	if host == `` {
		host = `localhost`
	}
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
