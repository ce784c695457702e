package wordpress

import (
	"maps"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/swdunlop/wprig-go/rig/devurl"
	"github.com/swdunlop/wprig-go/rig/envgate"
	"gopkg.in/yaml.v3"
)

// Placeholder is the dev server origin used in served code until the real dev server URL is known.
const Placeholder = `http://__wordpress_vite_placeholder__.test`

// Manifest file names, relative to the output directory.
const (
	ManifestName    = `manifest.json`
	SSRManifestName = `ssr-manifest.json`
)

// DefaultAliases are import aliases available to every build unless the bundler configuration replaces them.
var DefaultAliases = map[string]string{`@`: `/resources/js`}

// BundlerConfig holds the user's own bundler settings.  Anything set here takes precedence over the values the
// plugin would otherwise supply.
type BundlerConfig struct {
	Base    *string        `yaml:"base"`
	Server  ServerSettings `yaml:"server"`
	Build   BuildSettings  `yaml:"build"`
	Resolve struct {
		Alias map[string]string `yaml:"alias"`
	} `yaml:"resolve"`
}

// ServerSettings configure the dev server.
type ServerSettings struct {
	Host   string      `yaml:"host"`
	Port   int         `yaml:"port"`
	HTTPS  *bool       `yaml:"https"`
	HMR    *HMRSetting `yaml:"hmr"`
	Origin string      `yaml:"origin"`
	CORS   *bool       `yaml:"cors"`
}

// HMRSetting is either false, to turn the HMR transport off, or a set of overrides for it.
type HMRSetting struct {
	Disabled bool
	devurl.HMR
}

// UnmarshalYAML accepts a boolean or a mapping.
func (h *HMRSetting) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var on bool
		if err := node.Decode(&on); err != nil {
			return err
		}
		*h = HMRSetting{Disabled: !on}
		return nil
	}
	h.Disabled = false
	return node.Decode(&h.HMR)
}

// BuildSettings configure builds.
type BuildSettings struct {
	OutDir      string   `yaml:"outDir"`
	Input       []string `yaml:"input"`
	Manifest    *string  `yaml:"manifest"`
	EmptyOutDir *bool    `yaml:"emptyOutDir"`
	Minify      bool     `yaml:"minify"`
	Sourcemap   bool     `yaml:"sourcemap"`
	Target      string   `yaml:"target"`
}

// BuildEnv describes the command the bundler is running.
type BuildEnv struct {
	Command    envgate.Command
	Mode       string // "development" or "production" unless the user picks another
	IsSSRBuild bool
}

// An Overlay is the partial bundler configuration contributed by the plugin.
type Overlay struct {
	Base   string
	Build  BuildOverlay
	Server ServerOverlay
	Alias  map[string]string
	SSR    SSROverlay
}

// BuildOverlay holds build output settings.
type BuildOverlay struct {
	OutDir      string
	Input       []string
	Manifest    string // empty when no manifest is written
	SSRManifest string // empty when no SSR manifest is written
	EmptyOutDir bool
	SSR         bool
	EntryNames  string
	ChunkNames  string
	AssetNames  string
	Minify      bool
	Sourcemap   bool
	Target      string
}

// ServerOverlay holds dev server settings.
type ServerOverlay struct {
	Origin      string
	CORS        bool
	Host        string
	Port        int
	HTTPS       bool
	TLS         *envgate.TLS // set when the certificate came from the environment
	HMR         *devurl.HMR
	HMRDisabled bool
}

// URLConfig returns the part of the server settings that determines the dev server URL.
func (s ServerOverlay) URLConfig() devurl.ServerConfig {
	cfg := devurl.ServerConfig{HTTPS: s.HTTPS, Host: s.Host}
	if !s.HMRDisabled && s.HMR != nil {
		hmr := *s.HMR
		cfg.HMR = &hmr
	}
	return cfg
}

// SSROverlay holds server-side rendering settings.
type SSROverlay struct {
	ExternalizeDependencies bool
}

func resolveOverlay(cfg ResolvedConfig, user BundlerConfig, env BuildEnv, vars envgate.Env, tlsEnv *envgate.TLS) Overlay {
	ssr := env.IsSSRBuild
	var o Overlay

	switch {
	case user.Base != nil:
		o.Base = *user.Base
	case env.Command == envgate.Build:
		o.Base = resolveBase(cfg, vars.Get(envgate.VarAssetURL))
	}

	b := &o.Build
	b.SSR = ssr
	b.OutDir = user.Build.OutDir
	if b.OutDir == `` {
		b.OutDir = ResolveOutDir(cfg, ssr)
	}
	b.Input = user.Build.Input
	if len(b.Input) == 0 {
		b.Input = ResolveInput(cfg, ssr)
	}
	switch {
	case user.Build.Manifest != nil:
		b.Manifest = *user.Build.Manifest
	case !ssr:
		b.Manifest = ManifestName
	}
	if ssr {
		b.SSRManifest = SSRManifestName
	}
	b.EmptyOutDir = cfg.EmptyOutputDirOnBuild
	if user.Build.EmptyOutDir != nil {
		b.EmptyOutDir = *user.Build.EmptyOutDir
	}
	if ssr {
		b.EntryNames, b.ChunkNames, b.AssetNames = `[name]`, `chunks/[name]-[hash]`, `assets/[name]-[hash]`
	} else {
		b.EntryNames, b.ChunkNames, b.AssetNames = `[name]-[hash]`, `chunks/[name]-[hash]`, `assets/[name]-[hash]`
	}
	b.Minify, b.Sourcemap, b.Target = user.Build.Minify, user.Build.Sourcemap, user.Build.Target

	s := &o.Server
	s.Origin = user.Server.Origin
	if s.Origin == `` {
		s.Origin = Placeholder
	}
	s.CORS = user.Server.CORS == nil || *user.Server.CORS
	s.Host, s.Port = user.Server.Host, user.Server.Port
	if user.Server.HMR != nil {
		s.HMRDisabled = user.Server.HMR.Disabled
		if !s.HMRDisabled {
			hmr := user.Server.HMR.HMR
			s.HMR = &hmr
		}
	}
	if user.Server.HTTPS != nil {
		s.HTTPS = *user.Server.HTTPS
	}
	if tlsEnv != nil {
		if s.Host == `` {
			s.Host = tlsEnv.Host
		}
		if !s.HMRDisabled {
			// user overrides win over the discovered host.
			hmr := devurl.HMR{Host: tlsEnv.Host}
			if s.HMR != nil {
				if s.HMR.Host != `` {
					hmr.Host = s.HMR.Host
				}
				hmr.Protocol, hmr.Port = s.HMR.Protocol, s.HMR.Port
			}
			s.HMR = &hmr
		}
		if user.Server.HTTPS == nil {
			s.HTTPS, s.TLS = true, tlsEnv
		} else if s.HTTPS {
			s.TLS = tlsEnv
		}
	}

	o.Alias = maps.Clone(DefaultAliases)
	maps.Copy(o.Alias, user.Resolve.Alias)

	o.SSR.ExternalizeDependencies = cfg.ExternalizeSSRDependencies
	return o
}

// resolveBase returns the public path of built assets: ASSET_URL followed by the build directory, or "" so that
// esbuild writes paths relative to the importing file.
func resolveBase(cfg ResolvedConfig, assetURL string) string {
	if assetURL == `` {
		return ``
	}
	return strings.TrimRight(assetURL, `/`) + `/` + cfg.BuildDirectory + `/`
}

// Apply merges the overlay into esbuild build options for the given command.
func (o Overlay) Apply(opts *esbuild.BuildOptions, cmd envgate.Command) {
	opts.EntryPoints = append([]string(nil), o.Build.Input...)
	opts.Outdir = o.Build.OutDir
	opts.Bundle = true
	opts.Metafile = true
	opts.Format = esbuild.FormatESModule
	opts.EntryNames, opts.ChunkNames, opts.AssetNames = o.Build.EntryNames, o.Build.ChunkNames, o.Build.AssetNames

	if cmd == envgate.Serve {
		opts.PublicPath = o.Server.Origin
		opts.Write = false
		opts.Sourcemap = esbuild.SourceMapInline
	} else {
		opts.PublicPath = o.Base
		opts.Write = true
		if o.Build.Sourcemap {
			opts.Sourcemap = esbuild.SourceMapLinked
		}
		if o.Build.Minify {
			opts.MinifyWhitespace, opts.MinifyIdentifiers, opts.MinifySyntax = true, true, true
		}
	}
	if target, ok := targets[o.Build.Target]; ok {
		opts.Target = target
	}

	if len(o.Alias) > 0 {
		if opts.Alias == nil {
			opts.Alias = make(map[string]string, len(o.Alias))
		}
		for k, v := range o.Alias {
			if strings.HasPrefix(v, `/`) {
				v = `.` + v // project root relative
			}
			opts.Alias[k] = v
		}
	}

	if o.Build.SSR {
		opts.Platform = esbuild.PlatformNode
		if o.SSR.ExternalizeDependencies {
			opts.Packages = esbuild.PackagesExternal
		}
	} else {
		opts.Platform = esbuild.PlatformBrowser
		opts.Splitting = true
	}
}

var targets = map[string]esbuild.Target{
	`es2015`: esbuild.ES2015,
	`es2016`: esbuild.ES2016,
	`es2017`: esbuild.ES2017,
	`es2018`: esbuild.ES2018,
	`es2019`: esbuild.ES2019,
	`es2020`: esbuild.ES2020,
	`es2021`: esbuild.ES2021,
	`es2022`: esbuild.ES2022,
	`es2023`: esbuild.ES2023,
	`es2024`: esbuild.ES2024,
	`esnext`: esbuild.ESNext,
}
