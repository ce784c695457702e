package wordpress

import (
	"slices"
	"time"
)

// DefaultRefreshPaths are watched when refreshing is simply turned on.
var DefaultRefreshPaths = []string{`resources/views/**`}

// A RefreshConfig triggers a full page reload when a file matching one of its paths changes.
type RefreshConfig struct {
	Paths   []string
	Options *ReloadOptions
}

// ReloadOptions tune how a full reload is triggered.
type ReloadOptions struct {
	Root   string        // directory the paths are relative to, defaults to the working directory
	Delay  time.Duration // wait before reloading, so other watchers can settle
	Always *bool         // reload even if the changed file was not part of the page, defaults to true
}

// AlwaysReload reports whether the reload should happen regardless of what the page loaded.
func (o *ReloadOptions) AlwaysReload() bool {
	return o == nil || o.Always == nil || *o.Always
}

type refreshKind int

const (
	refreshUnset refreshKind = iota
	refreshOff
	refreshDefault
	refreshPaths
	refreshConfigs
)

// Refresh is one of the accepted forms of refresh configuration: off, on with default paths, a list of paths, or a
// list of RefreshConfig.  The zero Refresh is off.
type Refresh struct {
	kind    refreshKind
	paths   []string
	configs []RefreshConfig
}

// RefreshOff turns refreshing off.
func RefreshOff() Refresh { return Refresh{kind: refreshOff} }

// RefreshDefault watches DefaultRefreshPaths.
func RefreshDefault() Refresh { return Refresh{kind: refreshDefault} }

// RefreshPaths watches the given paths as a single RefreshConfig.
func RefreshPaths(paths ...string) Refresh {
	return Refresh{kind: refreshPaths, paths: slices.Clone(paths)}
}

// RefreshConfigs uses the given configurations as they are.
func RefreshConfigs(configs ...RefreshConfig) Refresh {
	return Refresh{kind: refreshConfigs, configs: slices.Clone(configs)}
}

// normalize returns the canonical list of refresh configurations, nil when refreshing is off.
func (r Refresh) normalize() ([]RefreshConfig, error) {
	switch r.kind {
	case refreshUnset, refreshOff:
		return nil, nil
	case refreshDefault:
		return []RefreshConfig{{Paths: slices.Clone(DefaultRefreshPaths)}}, nil
	case refreshPaths:
		if err := checkRefreshPaths(r.paths); err != nil {
			return nil, err
		}
		return []RefreshConfig{{Paths: slices.Clone(r.paths)}}, nil
	}
	if len(r.configs) == 0 {
		return nil, configErrorf(`refresh`, `must list at least one configuration`)
	}
	ret := make([]RefreshConfig, len(r.configs))
	for i, cfg := range r.configs {
		if err := checkRefreshPaths(cfg.Paths); err != nil {
			return nil, err
		}
		ret[i] = RefreshConfig{Paths: slices.Clone(cfg.Paths), Options: cfg.Options}
	}
	return ret, nil
}

func checkRefreshPaths(paths []string) error {
	if len(paths) == 0 {
		return configErrorf(`refresh`, `must list at least one path`)
	}
	if slices.Contains(paths, ``) {
		return configErrorf(`refresh`, `must not contain empty paths`)
	}
	return nil
}
