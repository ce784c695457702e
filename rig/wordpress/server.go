package wordpress

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/wprig-go/rig"
	"github.com/swdunlop/wprig-go/rig/api"
	"github.com/swdunlop/wprig-go/rig/devurl"
	"github.com/swdunlop/wprig-go/rig/envgate"
	esbuildrig "github.com/swdunlop/wprig-go/rig/esbuild"
	"github.com/swdunlop/wprig-go/rig/hmr"
	"github.com/swdunlop/wprig-go/rig/hook"
	"github.com/swdunlop/wprig-go/rig/www"
)

//go:embed dev-server-index.html
var devServerIndex string

// appURLToken is replaced with APP_URL in the dev server index page.
const appURLToken = `{{ APP_URL }}`

// DefaultPort is the dev server port used when neither an address nor server.port is given.
const DefaultPort = 5173

// devURLHook names the hook that resolves the dev server URL, for hooks that need it first.
const devURLHook = `wordpress-dev-url`

// ConfigureServer rigs the dev server: the hot file follows the listening socket, built assets are served from
// memory, browsers are told to reload when sources or refresh paths change, and /index.html explains where the site
// really is.  ConfigResolved must have been called for a serve command.
func (p *Plugin) ConfigureServer(r *rig.Config) error {
	resolved := p.current()
	if resolved == nil || resolved.Command() != envgate.Serve {
		return fmt.Errorf(`wordpress: the dev server needs a resolved serve configuration`)
	}
	ds := &devServer{p: p, server: resolved.Overlay.Server}
	r.Hook(ds)
	err := r.Apply(
		api.Rig(
			hmr.API(p.hub),
			api.Group(
				api.Use(api.AccessLog(zlog.Logger, zerolog.DebugLevel)),
				api.HandleFunc(`GET /index.html`, p.serveIndex),
				api.HandleFunc(`GET /{path...}`, p.serveAsset),
			),
		),
		esbuildrig.Rig(
			esbuildrig.BuildOption(func(opts *esbuild.BuildOptions) { *opts = resolved.Options }),
			esbuildrig.After(devURLHook),
		),
	)
	if err != nil {
		return err
	}
	return p.watchRefresh(r)
}

// devServer ties the hot file and TLS settings to the rig lifecycle.
type devServer struct {
	p      *Plugin
	server ServerOverlay
}

var (
	_ hook.Server   = (*devServer)(nil)
	_ hook.Ready    = (*devServer)(nil)
	_ hook.Shutdown = (*devServer)(nil)
	_ hook.Provider = (*devServer)(nil)
)

func (ds *devServer) Provides() []string { return []string{devURLHook} }

func (ds *devServer) RigServer(svr *http.Server) {
	if ds.server.TLS != nil {
		cfg, err := ds.server.TLS.Config()
		if err != nil {
			// the certificate was read at configuration time, so this only fails on a malformed pair.
			zlog.Error().Err(err).Msg(`cannot use the TLS certificate from the environment`)
		} else {
			svr.TLSConfig = cfg
		}
	}
	if ds.server.CORS {
		svr.Handler = api.CORS(ds.p.allowOrigin)(svr.Handler)
	}
}

func (ds *devServer) RigReady(ctx context.Context, addr net.Addr) error {
	url := devurl.Resolve(devurl.AddressOf(addr), ds.server.URLConfig())
	ds.p.setURL(url)
	if err := ds.p.hot.Listening(string(url)); err != nil {
		return fmt.Errorf(`%w while writing the hot file`, err)
	}
	hog.From(ctx).Info().
		Str(`url`, string(url)).
		Str(`appURL`, ds.p.env.Get(envgate.VarAppURL)).
		Str(`hotFile`, ds.p.hot.Path()).
		Str(`wordpress`, ds.p.wordpressVersion()).
		Str(`wprig`, Version()).
		Msg(`WordPress dev server ready`)
	return nil
}

func (ds *devServer) RigShutdown() {
	ds.p.hot.Terminate()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = ds.p.hub.Close(ctx)
}

// allowOrigin accepts the site at APP_URL, loopback hosts and the .test domains local WordPress tools use.
func (p *Plugin) allowOrigin(origin string) bool {
	if appURL := strings.TrimRight(p.env.Get(envgate.VarAppURL), `/`); appURL != `` && origin == appURL {
		return true
	}
	return devOrigin.MatchString(origin)
}

var devOrigin = regexp.MustCompile(`^https?://(?:(?:[^:]+\.)?localhost|127\.0\.0\.1|\[::1\]|[^:]+\.test)(?::\d+)?$`)

func (p *Plugin) serveIndex(w http.ResponseWriter, r *http.Request) {
	body := strings.ReplaceAll(devServerIndex, appURLToken, p.env.Get(envgate.VarAppURL))
	w.Header().Set(`Content-Type`, `text/html; charset=utf-8`)
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(body))
}

func (p *Plugin) serveAsset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue(`path`)
	if a, ok := p.assets.output(name); ok {
		w.Header().Set(`ETag`, a.etag)
		w.Header().Set(`Cache-Control`, `no-cache`)
		http.ServeContent(w, r, name, a.modified, bytes.NewReader(a.contents))
		return
	}
	if out, ok := p.assets.entry(name); ok {
		// relative imports inside the output resolve against the final URL.
		http.Redirect(w, r, `/`+out, http.StatusFound)
		return
	}
	p.static().ServeHTTP(w, r)
}

// DeniedFiles are never served from the project root by the dev server, matched against paths relative to the root.
// Certificates, keys, PHP sources and project settings stay private even when the dev server is reachable from
// other machines.
var DeniedFiles = []string{
	`**.pem`, `**.crt`, `**.key`, `**.p12`, `**.pfx`,
	`**.php`, `**.yaml`, `**.yml`, `**.json`, `**.lock`,
	`**.sql`, `**.log`, `**.sh`,
}

func (p *Plugin) static() http.Handler {
	p.staticOnce.Do(func() {
		root := p.absRoot()
		deny := slices.Clone(DeniedFiles)
		for _, key := range []string{envgate.VarServerKey, envgate.VarServerCert} {
			if rel, ok := below(root, p.env.Get(key)); ok {
				deny = append(deny, glob.QuoteMeta(rel))
			}
		}
		h, err := www.Handler(root, www.Deny(deny...))
		if err != nil {
			zlog.Error().Err(err).Msg(`cannot serve files from the project root`)
			h = http.NotFoundHandler()
		}
		p.staticHandler = h
	})
	return p.staticHandler
}

// below returns name relative to root, with forward slashes, if it is inside root.
func below(root, name string) (string, bool) {
	if name == `` {
		return ``, false
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(root, name)
	}
	rel, err := filepath.Rel(root, name)
	if err != nil || rel == `..` || strings.HasPrefix(rel, `..`+string(filepath.Separator)) {
		return ``, false
	}
	return filepath.ToSlash(rel), true
}

// an asset is a dev server output held in memory.
type asset struct {
	contents []byte
	etag     string
	modified time.Time
	src      string // entry point that produced the asset, if any
}

// an assetStore holds the outputs of the latest successful dev build, by path relative to the output directory, and
// maps entry points to their outputs.
type assetStore struct {
	mu      sync.RWMutex
	outputs map[string]*asset
	entries map[string]string
}

func newAssetStore() *assetStore {
	return &assetStore{outputs: map[string]*asset{}, entries: map[string]string{}}
}

func (s *assetStore) output(name string) (*asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.outputs[name]
	return a, ok
}

func (s *assetStore) entry(src string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.entries[src]
	return out, ok
}

// replace swaps in a new build and returns the outputs that changed, or nil if this was the first build.
func (s *assetStore) replace(outputs map[string]*asset) (changed []string, first bool) {
	entries := make(map[string]string)
	for name, a := range outputs {
		if a.src != `` {
			entries[a.src] = name
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	first = len(s.outputs) == 0
	for name, a := range outputs {
		if old, ok := s.outputs[name]; !ok || old.etag != a.etag {
			changed = append(changed, name)
		}
	}
	s.outputs, s.entries = outputs, entries
	return changed, first
}

// devPlugin captures dev build output in the asset store, rewriting it with Transform, and tells browsers what
// changed.
func (p *Plugin) devPlugin() esbuild.Plugin {
	return esbuild.Plugin{
		Name: `wordpress-dev-server`,
		Setup: func(build esbuild.PluginBuild) {
			outDir := build.InitialOptions.Outdir
			build.OnEnd(func(result *esbuild.BuildResult) (esbuild.OnEndResult, error) {
				p.captureBuild(outDir, result)
				return esbuild.OnEndResult{}, nil
			})
		},
	}
}

func (p *Plugin) captureBuild(outDir string, result *esbuild.BuildResult) {
	if len(result.Errors) > 0 {
		esbuildrig.PrintErrors(result.Errors)
		_ = p.hub.Send(hmr.Payload{Type: hmr.Error, Err: errorPayload(result.Errors[0])})
		return
	}

	root := p.absRoot()
	absOut := outDir
	if !filepath.IsAbs(absOut) {
		absOut = filepath.Join(root, filepath.FromSlash(outDir))
	}
	srcs := entrySources(result.Metafile, root, absOut)
	now := time.Now()
	outputs := make(map[string]*asset, len(result.OutputFiles))
	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(absOut, f.Path)
		if err != nil {
			continue
		}
		name := filepath.ToSlash(rel)
		contents := f.Contents
		if isCode(name) {
			contents = []byte(p.Transform(string(f.Contents)))
		}
		outputs[name] = &asset{
			contents: contents,
			etag:     `"` + f.Hash + `"`,
			modified: now,
			src:      srcs[name],
		}
	}

	changed, first := p.assets.replace(outputs)
	zlog.Debug().Int(`outputs`, len(outputs)).Strs(`changed`, changed).Msg(`dev build finished`)
	if first || len(changed) == 0 {
		return
	}
	_ = p.hub.Send(updatePayload(changed, outputs, now))
}

// updatePayload swaps stylesheets in place when only stylesheets changed, and reloads otherwise.
func updatePayload(changed []string, outputs map[string]*asset, now time.Time) hmr.Payload {
	var updates []hmr.ModuleUpdate
	for _, name := range changed {
		if strings.HasSuffix(name, `.map`) {
			continue
		}
		if !strings.HasSuffix(name, `.css`) {
			return hmr.Payload{Type: hmr.FullReload, Path: `*`}
		}
		path := name
		if src := outputs[name].src; src != `` {
			path = src
		}
		updates = append(updates, hmr.ModuleUpdate{Type: `css-update`, Path: `/` + path, Timestamp: now.UnixMilli()})
	}
	return hmr.Payload{Type: hmr.Update, Updates: updates}
}

func isCode(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case `.js`, `.mjs`, `.css`:
		return true
	}
	return false
}

func errorPayload(msg esbuild.Message) *hmr.ErrorPayload {
	ret := &hmr.ErrorPayload{Message: msg.Text}
	if loc := msg.Location; loc != nil {
		ret.File, ret.Line, ret.Column = loc.File, loc.Line, loc.Column
	}
	return ret
}

// entrySources maps outputs, relative to outDir, to the entry points that produced them, relative to root.
func entrySources(meta string, root, outDir string) map[string]string {
	ret := map[string]string{}
	if meta == `` {
		return ret
	}
	var mf metafile
	if err := json.Unmarshal([]byte(meta), &mf); err != nil {
		return ret
	}
	for out, info := range mf.Outputs {
		if info.EntryPoint == `` || strings.HasSuffix(out, `.map`) {
			continue
		}
		rel, err := filepath.Rel(outDir, filepath.Join(root, filepath.FromSlash(out)))
		if err != nil {
			continue
		}
		ret[filepath.ToSlash(rel)] = info.EntryPoint
	}
	return ret
}

var wordpressVersionPattern = regexp.MustCompile(`\$wp_version\s*=\s*['"]([^'"]+)['"]`)

// wordpressVersion reads the version of the WordPress install around the project, or returns "" if there is none.
// Themes and plugins live in wp-content/themes/<name> or wp-content/plugins/<name>.
func (p *Plugin) wordpressVersion() string {
	data, err := os.ReadFile(filepath.Join(p.absRoot(), `..`, `..`, `..`, `wp-includes`, `version.php`))
	if err != nil {
		return ``
	}
	m := wordpressVersionPattern.FindSubmatch(data)
	if m == nil {
		return ``
	}
	return string(m[1])
}

// Version returns the version of this module in the running binary, or "" if it is not known.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ``
	}
	if info.Main.Path == modulePath {
		return strings.TrimPrefix(info.Main.Version, `(devel)`)
	}
	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			return dep.Version
		}
	}
	return ``
}

const modulePath = `github.com/swdunlop/wprig-go`
