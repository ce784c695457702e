package wordpress

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

// withoutTransform drops the transform, since functions cannot be compared.
func withoutTransform(cfg ResolvedConfig) ResolvedConfig {
	cfg.TransformOnServe = nil
	return cfg
}

func TestNormalizeDefaults(t *testing.T) {
	cfg, err := Normalize(&Config{Namespace: `theme`, Input: []string{`resources/js/app.js`}})
	require.NoError(t, err)
	assert.Equal(t, ResolvedConfig{
		Namespace:          `theme`,
		Input:              []string{`resources/js/app.js`},
		SSRInput:           []string{`resources/js/app.js`},
		PublicDirectory:    `../../uploads/theme`,
		BuildDirectory:     `build`,
		SSROutputDirectory: `../../uploads/theme/ssr`,
		HotFile:            `../../uploads/theme/hot`,

		EmptyOutputDirOnBuild: true,
	}, withoutTransform(cfg))
	require.NotNil(t, cfg.TransformOnServe)
	assert.Equal(t, `code`, cfg.TransformOnServe(`code`, `http://localhost:5173`))
}

func TestNormalizeDerivesFromPublicDirectory(t *testing.T) {
	cfg, err := Normalize(&Config{
		Namespace:       `theme`,
		Input:           []string{`app.js`},
		SSR:             []string{`ssr.js`},
		PublicDirectory: `/public/`,
	})
	require.NoError(t, err)
	assert.Equal(t, `public`, cfg.PublicDirectory)
	assert.Equal(t, `public/ssr`, cfg.SSROutputDirectory)
	assert.Equal(t, `public/hot`, cfg.HotFile)
	assert.Equal(t, []string{`ssr.js`}, cfg.SSRInput)
}

func TestNormalizeTrimsSlashes(t *testing.T) {
	cfg, err := Normalize(&Config{
		Namespace:          `theme`,
		Input:              []string{`app.js`},
		PublicDirectory:    `/foo/`,
		BuildDirectory:     `/dist/`,
		SSROutputDirectory: `/server/`,
	})
	require.NoError(t, err)
	assert.Equal(t, `foo`, cfg.PublicDirectory)
	assert.Equal(t, `dist`, cfg.BuildDirectory)
	assert.Equal(t, `server`, cfg.SSROutputDirectory)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	transform := func(code, url string) string { return code + `//` + url }
	for _, cfg := range []*Config{
		{Namespace: `theme`, Input: []string{`app.js`}},
		{Namespace: `theme`, Input: []string{`a.js`, `b.css`}, SSR: []string{`ssr.js`}, PublicDirectory: `/public/`,
			BuildDirectory: `dist/`, HotFile: `storage/hot`, EmptyOutputDirOnBuild: boolPtr(false),
			ExternalizeSSRDependencies: true, Refresh: RefreshDefault(), TransformOnServe: transform},
		{Namespace: `plugin`, Input: []string{`app.js`}, Refresh: RefreshConfigs(RefreshConfig{
			Paths: []string{`templates/**`}, Options: &ReloadOptions{Delay: time.Second, Always: boolPtr(false)},
		})},
	} {
		first, err := Normalize(cfg)
		require.NoError(t, err)
		second, err := Normalize(first.Config())
		require.NoError(t, err)
		assert.Equal(t, withoutTransform(first), withoutTransform(second))
		assert.Equal(t, first.TransformOnServe(`x`, `u`), second.TransformOnServe(`x`, `u`))
	}
}

func TestNormalizeErrors(t *testing.T) {
	for name, cfg := range map[string]*Config{
		``:                   nil,
		`namespace`:          {Input: []string{`app.js`}},
		`input`:              {Namespace: `theme`},
		`publicDirectory`:    {Namespace: `theme`, Input: []string{`app.js`}, PublicDirectory: `/`},
		`buildDirectory`:     {Namespace: `theme`, Input: []string{`app.js`}, BuildDirectory: `//`},
		`ssrOutputDirectory`: {Namespace: `theme`, Input: []string{`app.js`}, SSROutputDirectory: `/`},
		`refresh`:            {Namespace: `theme`, Input: []string{`app.js`}, Refresh: RefreshPaths()},
	} {
		t.Run(name, func(t *testing.T) {
			ret, err := Normalize(cfg)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), `expected a ConfigError, got %v`, err)
			assert.Equal(t, name, ce.Field)
			assert.Equal(t, ResolvedConfig{}, withoutTransform(ret))
		})
	}
}

func TestNormalizeDoesNotTouchFilesystem(t *testing.T) {
	dir := t.TempDir()
	_, err := Normalize(&Config{Namespace: `theme`, Input: []string{`app.js`}, PublicDirectory: filepath.Join(dir, `public`)})
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, `public`))

	cfg, err := Normalize(&Config{Namespace: `theme`, Input: []string{`app.js`}, PublicDirectory: `public`})
	require.NoError(t, err)
	require.NoError(t, EnsurePublicDirectory(dir, cfg))
	assert.DirExists(t, filepath.Join(dir, `public`))
}

func TestRefreshForms(t *testing.T) {
	for _, tc := range []struct {
		name    string
		refresh Refresh
		expect  []RefreshConfig
	}{
		{`unset`, Refresh{}, nil},
		{`off`, RefreshOff(), nil},
		{`true`, RefreshDefault(), []RefreshConfig{{Paths: []string{`resources/views/**`}}}},
		{`string`, RefreshPaths(`a/**`), []RefreshConfig{{Paths: []string{`a/**`}}}},
		{`list`, RefreshPaths(`a/**`, `b/**`), []RefreshConfig{{Paths: []string{`a/**`, `b/**`}}}},
		{`configs`, RefreshConfigs(RefreshConfig{Paths: []string{`a/**`}}, RefreshConfig{Paths: []string{`b/**`}}),
			[]RefreshConfig{{Paths: []string{`a/**`}}, {Paths: []string{`b/**`}}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Normalize(&Config{Namespace: `theme`, Input: []string{`app.js`}, Refresh: tc.refresh})
			require.NoError(t, err)
			assert.Equal(t, tc.expect, cfg.Refresh)
		})
	}
}

func TestReloadOptions(t *testing.T) {
	var none *ReloadOptions
	assert.True(t, none.AlwaysReload())
	assert.True(t, (&ReloadOptions{}).AlwaysReload())
	assert.False(t, (&ReloadOptions{Always: boolPtr(false)}).AlwaysReload())
}

func TestResolvePaths(t *testing.T) {
	cfg, err := Normalize(&Config{
		Namespace:       `theme`,
		Input:           []string{`app.js`},
		SSR:             []string{`ssr.js`},
		PublicDirectory: `public`,
		BuildDirectory:  `dist`,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`app.js`}, ResolveInput(cfg, false))
	assert.Equal(t, []string{`ssr.js`}, ResolveInput(cfg, true))
	assert.Equal(t, cfg.PublicDirectory+`/`+cfg.BuildDirectory, ResolveOutDir(cfg, false))
	assert.Equal(t, `public/dist`, ResolveOutDir(cfg, false))
	assert.Equal(t, cfg.SSROutputDirectory, ResolveOutDir(cfg, true))
}

func TestParse(t *testing.T) {
	cfg, err := Parse(map[string]any{
		`namespace`:                  `theme`,
		`input`:                      `resources/js/app.js`,
		`ssr`:                        []any{`resources/js/ssr.js`},
		`publicDirectory`:            `public`,
		`buildDirectory`:             `dist`,
		`hotFile`:                    `public/hot`,
		`emptyOutputDirOnBuild`:      false,
		`externalizeSsrDependencies`: true,
		`refresh`: []any{
			map[string]any{`paths`: []any{`templates/**`}, `config`: map[string]any{`delay`: 250, `always`: false}},
			map[string]any{`paths`: `parts/**`},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `theme`, cfg.Namespace)
	assert.Equal(t, []string{`resources/js/app.js`}, cfg.Input)
	assert.Equal(t, []string{`resources/js/ssr.js`}, cfg.SSR)
	assert.Equal(t, boolPtr(false), cfg.EmptyOutputDirOnBuild)
	assert.True(t, cfg.ExternalizeSSRDependencies)

	resolved, err := Normalize(cfg)
	require.NoError(t, err)
	require.Len(t, resolved.Refresh, 2)
	assert.Equal(t, []string{`templates/**`}, resolved.Refresh[0].Paths)
	assert.Equal(t, 250*time.Millisecond, resolved.Refresh[0].Options.Delay)
	assert.False(t, resolved.Refresh[0].Options.AlwaysReload())
	assert.Equal(t, []string{`parts/**`}, resolved.Refresh[1].Paths)
}

func TestParseRefreshShapes(t *testing.T) {
	for _, tc := range []struct {
		name   string
		value  any
		expect []RefreshConfig
	}{
		{`true`, true, []RefreshConfig{{Paths: []string{`resources/views/**`}}}},
		{`false`, false, nil},
		{`string`, `a/**`, []RefreshConfig{{Paths: []string{`a/**`}}}},
		{`list`, []any{`a/**`, `b/**`}, []RefreshConfig{{Paths: []string{`a/**`, `b/**`}}}},
		{`object`, map[string]any{`paths`: []any{`a/**`}}, []RefreshConfig{{Paths: []string{`a/**`}}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse(map[string]any{`namespace`: `theme`, `input`: `app.js`, `refresh`: tc.value})
			require.NoError(t, err)
			resolved, err := Normalize(cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, resolved.Refresh)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for name, raw := range map[string]any{
		`missing`:        nil,
		`list`:           []any{`namespace`, `theme`},
		`string`:         `theme`,
		`unknown key`:    map[string]any{`namespace`: `theme`, `input`: `app.js`, `outDir`: `dist`},
		`numeric input`:  map[string]any{`namespace`: `theme`, `input`: 42},
		`mixed input`:    map[string]any{`namespace`: `theme`, `input`: []any{`app.js`, 1}},
		`bad namespace`:  map[string]any{`namespace`: true, `input`: `app.js`},
		`bad refresh`:    map[string]any{`namespace`: `theme`, `input`: `app.js`, `refresh`: 12},
		`mixed refresh`:  map[string]any{`namespace`: `theme`, `input`: `app.js`, `refresh`: []any{`a/**`, map[string]any{}}},
		`bad delay`:      map[string]any{`namespace`: `theme`, `input`: `app.js`, `refresh`: map[string]any{`paths`: `a`, `config`: map[string]any{`delay`: `soon`}}},
		`bad empty flag`: map[string]any{`namespace`: `theme`, `input`: `app.js`, `emptyOutputDirOnBuild`: `yes`},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			var ce *ConfigError
			assert.True(t, errors.As(err, &ce), `expected a ConfigError, got %v`, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), `wordpress.yaml`)
	require.NoError(t, os.WriteFile(path, []byte(`
namespace: my-theme
input:
  - resources/js/app.js
  - resources/css/app.css
refresh: true
base: /wp-content/themes/my-theme/
server:
  port: 3000
  hmr:
    host: my-theme.test
    protocol: wss
build:
  minify: true
  target: es2020
resolve:
  alias:
    "~": /resources
`), 0o644))

	cfg, bundler, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, `my-theme`, cfg.Namespace)
	assert.Equal(t, []string{`resources/js/app.js`, `resources/css/app.css`}, cfg.Input)
	assert.Equal(t, RefreshDefault(), cfg.Refresh)

	require.NotNil(t, bundler.Base)
	assert.Equal(t, `/wp-content/themes/my-theme/`, *bundler.Base)
	assert.Equal(t, 3000, bundler.Server.Port)
	require.NotNil(t, bundler.Server.HMR)
	assert.False(t, bundler.Server.HMR.Disabled)
	assert.Equal(t, `my-theme.test`, bundler.Server.HMR.Host)
	assert.Equal(t, `wss`, bundler.Server.HMR.Protocol)
	assert.True(t, bundler.Build.Minify)
	assert.Equal(t, `es2020`, bundler.Build.Target)
	assert.Equal(t, `/resources`, bundler.Resolve.Alias[`~`])
}

func TestLoadHMRDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), `wordpress.yml`)
	require.NoError(t, os.WriteFile(path, []byte("namespace: t\ninput: app.js\nserver:\n  hmr: false\n"), 0o644))
	_, bundler, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, bundler.Server.HMR)
	assert.True(t, bundler.Server.HMR.Disabled)
}

func TestLoadRejectsList(t *testing.T) {
	path := filepath.Join(t.TempDir(), `wordpress.yaml`)
	require.NoError(t, os.WriteFile(path, []byte("- namespace: theme\n"), 0o644))
	_, _, err := Load(path)
	var ce *ConfigError
	assert.True(t, errors.As(err, &ce), `expected a ConfigError, got %v`, err)
}
