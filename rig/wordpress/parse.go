package wordpress

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Parse converts loosely typed configuration, such as the result of decoding YAML or JSON into an any, into a
// Config.  The value must be a mapping, and every field must have one of its accepted shapes.
func Parse(raw any) (*Config, error) {
	if raw == nil {
		return nil, configErrorf(``, `missing configuration`)
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, configErrorf(``, `expected a mapping, got %s`, shapeOf(raw))
	}

	var cfg Config
	for key, value := range m {
		var err error
		switch key {
		case `namespace`:
			cfg.Namespace, err = parseString(key, value)
		case `input`:
			cfg.Input, err = parseStrings(key, value)
		case `ssr`:
			cfg.SSR, err = parseStrings(key, value)
		case `publicDirectory`:
			cfg.PublicDirectory, err = parseString(key, value)
		case `buildDirectory`:
			cfg.BuildDirectory, err = parseString(key, value)
		case `ssrOutputDirectory`:
			cfg.SSROutputDirectory, err = parseString(key, value)
		case `hotFile`:
			cfg.HotFile, err = parseString(key, value)
		case `emptyOutputDirOnBuild`:
			var b bool
			b, err = parseBool(key, value)
			cfg.EmptyOutputDirOnBuild = &b
		case `externalizeSsrDependencies`:
			cfg.ExternalizeSSRDependencies, err = parseBool(key, value)
		case `refresh`:
			cfg.Refresh, err = parseRefresh(value)
		default:
			err = configErrorf(key, `is not a recognized option`)
		}
		if err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func parseRefresh(value any) (Refresh, error) {
	switch v := value.(type) {
	case nil:
		return RefreshOff(), nil
	case bool:
		if v {
			return RefreshDefault(), nil
		}
		return RefreshOff(), nil
	case string:
		return RefreshPaths(v), nil
	}
	if m, ok := asMap(value); ok {
		cfg, err := parseRefreshConfig(m)
		if err != nil {
			return Refresh{}, err
		}
		return RefreshConfigs(cfg), nil
	}
	seq, ok := value.([]any)
	if !ok {
		return Refresh{}, configErrorf(`refresh`, `must be a boolean, path, list of paths or list of configurations, got %s`, shapeOf(value))
	}
	if len(seq) == 0 {
		return RefreshOff(), nil
	}
	if _, ok := seq[0].(string); ok {
		paths, err := parseStrings(`refresh`, value)
		if err != nil {
			return Refresh{}, err
		}
		return RefreshPaths(paths...), nil
	}
	configs := make([]RefreshConfig, 0, len(seq))
	for _, item := range seq {
		m, ok := asMap(item)
		if !ok {
			return Refresh{}, configErrorf(`refresh`, `cannot mix paths and configurations`)
		}
		cfg, err := parseRefreshConfig(m)
		if err != nil {
			return Refresh{}, err
		}
		configs = append(configs, cfg)
	}
	return RefreshConfigs(configs...), nil
}

func parseRefreshConfig(m map[string]any) (cfg RefreshConfig, err error) {
	for key, value := range m {
		switch key {
		case `paths`:
			cfg.Paths, err = parseStrings(`refresh.paths`, value)
		case `config`:
			cfg.Options, err = parseReloadOptions(value)
		default:
			err = configErrorf(`refresh.`+key, `is not a recognized option`)
		}
		if err != nil {
			return
		}
	}
	return
}

func parseReloadOptions(value any) (*ReloadOptions, error) {
	m, ok := asMap(value)
	if !ok {
		return nil, configErrorf(`refresh.config`, `expected a mapping, got %s`, shapeOf(value))
	}
	var opts ReloadOptions
	for key, value := range m {
		var err error
		switch key {
		case `root`:
			opts.Root, err = parseString(`refresh.config.root`, value)
		case `delay`:
			var ms float64
			ms, err = parseNumber(`refresh.config.delay`, value)
			opts.Delay = time.Duration(ms * float64(time.Millisecond))
		case `always`:
			var b bool
			b, err = parseBool(`refresh.config.always`, value)
			opts.Always = &b
		default:
			err = configErrorf(`refresh.config.`+key, `is not a recognized option`)
		}
		if err != nil {
			return nil, err
		}
	}
	return &opts, nil
}

func parseString(field string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return ``, configErrorf(field, `must be a string, got %s`, shapeOf(value))
	}
	return s, nil
}

func parseStrings(field string, value any) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		ret := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, configErrorf(field, `must only contain strings, got %s`, shapeOf(item))
			}
			ret[i] = s
		}
		return ret, nil
	}
	return nil, configErrorf(field, `must be a string or a list of strings, got %s`, shapeOf(value))
}

func parseBool(field string, value any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, configErrorf(field, `must be a boolean, got %s`, shapeOf(value))
	}
	return b, nil
}

func parseNumber(field string, value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	}
	return 0, configErrorf(field, `must be a number, got %s`, shapeOf(value))
}

func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, item := range v {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			m[s] = item
		}
		return m, true
	}
	return nil, false
}

func shapeOf(value any) string {
	switch value.(type) {
	case nil:
		return `nothing`
	case string:
		return `a string`
	case bool:
		return `a boolean`
	case int, int64, float64:
		return `a number`
	case []any, []string:
		return `a list`
	case map[string]any, map[any]any:
		return `a mapping`
	}
	return fmt.Sprintf(`%T`, value)
}

// bundlerKeys are the project file sections that configure the bundler rather than the plugin.
var bundlerKeys = []string{`base`, `server`, `build`, `resolve`}

// Load reads a YAML or JSON project file that holds the plugin configuration at the top level alongside the bundler
// sections "base", "server", "build" and "resolve".
func Load(path string) (*Config, *BundlerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf(`%w while parsing %s`, err, path)
	}
	if m, ok := asMap(raw); ok {
		for _, key := range bundlerKeys {
			delete(m, key)
		}
		raw = m
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	var bundler BundlerConfig
	if err := yaml.Unmarshal(data, &bundler); err != nil {
		return nil, nil, fmt.Errorf(`%w while parsing %s`, err, path)
	}
	return cfg, &bundler, nil
}
