package wordpress

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// A Config is the plugin configuration as the user writes it.  Only Namespace and Input are required, everything
// else has a default that Normalize fills in.
type Config struct {
	// Namespace identifies the theme or plugin and scopes the default public directory.
	Namespace string

	// Input lists the entry points for browser builds.
	Input []string

	// SSR lists the entry points for server-side rendering builds, defaults to Input.
	SSR []string

	// PublicDirectory receives build output and the hot file, defaults to ../../uploads/<namespace>.
	PublicDirectory string

	// BuildDirectory is the subdirectory of PublicDirectory for browser builds, defaults to "build".
	BuildDirectory string

	// SSROutputDirectory receives server-side rendering builds, defaults to <PublicDirectory>/ssr.
	SSROutputDirectory string

	// HotFile is where the dev server URL is written, defaults to <PublicDirectory>/hot.
	HotFile string

	// EmptyOutputDirOnBuild removes stale output before building, defaults to true.
	EmptyOutputDirOnBuild *bool

	// ExternalizeSSRDependencies leaves package imports out of server-side rendering bundles.
	ExternalizeSSRDependencies bool

	// Refresh configures full page reloads when matching files change.
	Refresh Refresh

	// TransformOnServe is applied to code served by the dev server after the dev server URL is substituted.
	TransformOnServe func(code, devServerURL string) string
}

// A ResolvedConfig is a Config with every default applied.
type ResolvedConfig struct {
	Namespace                  string
	Input                      []string
	SSRInput                   []string
	PublicDirectory            string
	BuildDirectory             string
	SSROutputDirectory         string
	HotFile                    string
	EmptyOutputDirOnBuild      bool
	ExternalizeSSRDependencies bool
	Refresh                    []RefreshConfig // nil when refreshing is off
	TransformOnServe           func(code, devServerURL string) string
}

// Config returns a Config that normalizes back to cfg.
func (cfg ResolvedConfig) Config() *Config {
	empty := cfg.EmptyOutputDirOnBuild
	ret := &Config{
		Namespace:                  cfg.Namespace,
		Input:                      slices.Clone(cfg.Input),
		SSR:                        slices.Clone(cfg.SSRInput),
		PublicDirectory:            cfg.PublicDirectory,
		BuildDirectory:             cfg.BuildDirectory,
		SSROutputDirectory:         cfg.SSROutputDirectory,
		HotFile:                    cfg.HotFile,
		EmptyOutputDirOnBuild:      &empty,
		ExternalizeSSRDependencies: cfg.ExternalizeSSRDependencies,
		TransformOnServe:           cfg.TransformOnServe,
	}
	if cfg.Refresh != nil {
		ret.Refresh = RefreshConfigs(cfg.Refresh...)
	}
	return ret
}

// A ConfigError describes an invalid plugin configuration.
type ConfigError struct {
	Field   string // empty when the configuration as a whole is invalid
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == `` {
		return `wordpress: ` + e.Message
	}
	return fmt.Sprintf(`wordpress: %s %s`, e.Field, e.Message)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DefaultBuildDirectory is the build directory used when none is configured.
const DefaultBuildDirectory = `build`

// Normalize validates cfg and returns it with every default applied.  It does not touch the filesystem.
func Normalize(cfg *Config) (ResolvedConfig, error) {
	ret, err := normalize(cfg)
	if err != nil {
		return ResolvedConfig{}, err
	}
	return ret, nil
}

func normalize(cfg *Config) (ret ResolvedConfig, err error) {
	if cfg == nil {
		return ret, configErrorf(``, `missing configuration`)
	}
	if strings.TrimSpace(cfg.Namespace) == `` {
		return ret, configErrorf(`namespace`, `is required`)
	}
	if len(cfg.Input) == 0 {
		return ret, configErrorf(`input`, `is required`)
	}
	for _, input := range cfg.Input {
		if input == `` {
			return ret, configErrorf(`input`, `must not contain empty entry points`)
		}
	}

	ret.Namespace = cfg.Namespace
	ret.Input = slices.Clone(cfg.Input)
	ret.SSRInput = slices.Clone(cfg.SSR)
	if len(ret.SSRInput) == 0 {
		ret.SSRInput = slices.Clone(cfg.Input)
	}

	ret.PublicDirectory = DefaultPublicDirectory(cfg.Namespace)
	if cfg.PublicDirectory != `` {
		ret.PublicDirectory = strings.Trim(cfg.PublicDirectory, `/`)
		if ret.PublicDirectory == `` {
			return ret, configErrorf(`publicDirectory`, `must be a subdirectory, e.g. "public"`)
		}
	}

	ret.BuildDirectory = DefaultBuildDirectory
	if cfg.BuildDirectory != `` {
		ret.BuildDirectory = strings.Trim(cfg.BuildDirectory, `/`)
		if ret.BuildDirectory == `` {
			return ret, configErrorf(`buildDirectory`, `must be a subdirectory, e.g. "build"`)
		}
	}

	ret.SSROutputDirectory = strings.TrimRight(path.Join(ret.PublicDirectory, `ssr`), `/`)
	if cfg.SSROutputDirectory != `` {
		ret.SSROutputDirectory = strings.Trim(cfg.SSROutputDirectory, `/`)
		if ret.SSROutputDirectory == `` {
			return ret, configErrorf(`ssrOutputDirectory`, `must be a subdirectory, e.g. "ssr"`)
		}
	}

	ret.HotFile = path.Join(ret.PublicDirectory, `hot`)
	if cfg.HotFile != `` {
		ret.HotFile = cfg.HotFile
	}

	ret.EmptyOutputDirOnBuild = true
	if cfg.EmptyOutputDirOnBuild != nil {
		ret.EmptyOutputDirOnBuild = *cfg.EmptyOutputDirOnBuild
	}
	ret.ExternalizeSSRDependencies = cfg.ExternalizeSSRDependencies

	ret.Refresh, err = cfg.Refresh.normalize()
	if err != nil {
		return ret, err
	}

	ret.TransformOnServe = cfg.TransformOnServe
	if ret.TransformOnServe == nil {
		ret.TransformOnServe = identity
	}
	return ret, nil
}

func identity(code, _ string) string { return code }

// DefaultPublicDirectory is the public directory for a namespace when none is configured.  Themes and plugins live two
// levels below wp-content, so this lands in wp-content/uploads.
func DefaultPublicDirectory(namespace string) string {
	return path.Join(`..`, `..`, `uploads`, namespace)
}

// EnsurePublicDirectory creates the public directory of cfg, relative to root, if it does not exist.
func EnsurePublicDirectory(root string, cfg ResolvedConfig) error {
	dir := filepath.FromSlash(cfg.PublicDirectory)
	if root != `` {
		dir = filepath.Join(root, dir)
	}
	return os.MkdirAll(dir, 0o755)
}
