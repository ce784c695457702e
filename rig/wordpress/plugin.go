package wordpress

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/swdunlop/wprig-go/rig/devurl"
	"github.com/swdunlop/wprig-go/rig/envgate"
	"github.com/swdunlop/wprig-go/rig/hmr"
	"github.com/swdunlop/wprig-go/rig/hotfile"
)

// A Plugin adapts esbuild and the rig dev server to a WordPress theme or plugin.  It is constructed once per process
// with New, configured by Config, informed of the final configuration by ConfigResolved, and then either builds or
// serves.
type Plugin struct {
	cfg      ResolvedConfig
	env      envgate.Env
	root     string
	registry *hotfile.Registry
	hot      *hotfile.Manager
	hub      *hmr.Hub
	assets   *assetStore

	staticOnce    sync.Once
	staticHandler http.Handler

	mu       sync.Mutex
	resolved *Resolved
	url      devurl.URL
}

// An Option adjusts how a Plugin interacts with its surroundings.
type Option func(*Plugin) error

// Env replaces the process environment the plugin consults.
func Env(env envgate.Env) Option {
	return func(p *Plugin) error {
		p.env = env
		return nil
	}
}

// Root sets the project root that relative paths are resolved against, defaults to the working directory.
func Root(dir string) Option {
	return func(p *Plugin) error {
		p.root = dir
		return nil
	}
}

// Registry replaces the process registry used to remove the hot file when the process is terminated.
func Registry(registry *hotfile.Registry) Option {
	return func(p *Plugin) error {
		if registry == nil {
			return errors.New(`wordpress: nil hot file registry`)
		}
		p.registry = registry
		return nil
	}
}

// New normalizes cfg and returns a plugin for it.  Configuration errors are reported here, before anything is built
// or served.
func New(cfg *Config, options ...Option) (*Plugin, error) {
	resolved, err := Normalize(cfg)
	if err != nil {
		return nil, err
	}
	p := &Plugin{cfg: resolved, hub: new(hmr.Hub), assets: newAssetStore()}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	if p.env == nil {
		p.env = envgate.FromEnviron(os.Environ())
	}
	if p.registry == nil {
		p.registry = hotfile.Process()
	}
	p.hot = hotfile.New(p.path(resolved.HotFile), p.registry)
	return p, nil
}

// Name identifies the plugin in esbuild diagnostics.
func (p *Plugin) Name() string { return `wordpress` }

// ResolvedConfig returns the normalized plugin configuration.
func (p *Plugin) ResolvedConfig() ResolvedConfig { return p.cfg }

// HotFile returns the manager of the hot file.
func (p *Plugin) HotFile() *hotfile.Manager { return p.hot }

// Hub returns the hub that notifies browsers of changes.
func (p *Plugin) Hub() *hmr.Hub { return p.hub }

// path resolves a slash separated path relative to the project root.
func (p *Plugin) path(name string) string {
	name = filepath.FromSlash(name)
	if p.root == `` || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.root, name)
}

// Config returns the configuration the plugin contributes for a command.  When serving, it refuses to continue in a
// CI environment and discovers TLS settings from the environment; either failure prevents the dev server from
// starting.
func (p *Plugin) Config(user BundlerConfig, env BuildEnv) (Overlay, error) {
	if err := envgate.Check(env.Command, p.env); err != nil {
		return Overlay{}, err
	}
	var tlsEnv *envgate.TLS
	if env.Command == envgate.Serve {
		var err error
		tlsEnv, err = envgate.DiscoverTLS(p.env)
		if err != nil {
			return Overlay{}, err
		}
	}
	return resolveOverlay(p.cfg, user, env, p.env, tlsEnv), nil
}

// Resolved is the final configuration of a build or dev server, after the user's settings and the plugin's overlay
// have been merged.
type Resolved struct {
	Env     BuildEnv
	Overlay Overlay
	Options esbuild.BuildOptions
}

// Command returns the command being run.
func (r *Resolved) Command() envgate.Command { return r.Env.Command }

// Resolve merges an overlay into esbuild options.  The plugin's own esbuild plugins are included.
func (p *Plugin) Resolve(env BuildEnv, o Overlay) Resolved {
	var opts esbuild.BuildOptions
	opts.LogLevel = esbuild.LogLevelSilent
	o.Apply(&opts, env.Command)
	opts.AbsWorkingDir = p.absRoot()
	opts.Plugins = append(opts.Plugins, p.Plugins(env)...)
	return Resolved{Env: env, Overlay: o, Options: opts}
}

func (p *Plugin) absRoot() string {
	root := p.root
	if root == `` {
		root = `.`
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return root
	}
	return abs
}

// ConfigResolved captures the final configuration for Transform and the dev server.
func (p *Plugin) ConfigResolved(r Resolved) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = &r
}

func (p *Plugin) current() *Resolved {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolved
}

// URL returns the dev server URL, empty until the dev server is listening.
func (p *Plugin) URL() devurl.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Plugin) setURL(url devurl.URL) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// Transform rewrites code served by the dev server so references to the placeholder origin point at the dev server,
// then applies the configured TransformOnServe.  Code is returned unchanged unless the plugin is serving.
func (p *Plugin) Transform(code string) string {
	r := p.current()
	if r == nil || r.Command() != envgate.Serve {
		return code
	}
	url := string(p.URL())
	code = strings.ReplaceAll(code, Placeholder, url)
	return p.cfg.TransformOnServe(code, url)
}

// Plugins returns the esbuild plugins for a command: the globals plugin for browser builds, and the plugin that
// captures dev server output when serving.
func (p *Plugin) Plugins(env BuildEnv) []esbuild.Plugin {
	var ret []esbuild.Plugin
	if !env.IsSSRBuild {
		ret = append(ret, GlobalsPlugin())
	}
	if env.Command == envgate.Serve {
		ret = append(ret, p.devPlugin())
	}
	return ret
}
