// Package envgate decides whether the dev server may start in the current environment and discovers TLS settings
// for it from environment variables.  Environment access is always through an Env so callers can substitute fixtures
// for the process environment.
package envgate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
)

// Environment variables consulted by this package.
const (
	VarCI         = `CI`
	VarBypass     = `WORDPRESS_BYPASS_ENV_CHECK`
	VarAppURL     = `APP_URL`
	VarAssetURL   = `ASSET_URL`
	VarServerKey  = `VITE_DEV_SERVER_KEY`
	VarServerCert = `VITE_DEV_SERVER_CERT`
)

// A Command is the bundler command being run.
type Command string

const (
	Build Command = `build`
	Serve Command = `serve`
)

// Env is a snapshot of environment variables.  A key that is present with an empty value is different from a key
// that is absent.
type Env map[string]string

// Lookup returns the value of key and whether it is present.
func (env Env) Lookup(key string) (string, bool) {
	v, ok := env[key]
	return v, ok
}

// Get returns the value of key, or "" if it is absent.
func (env Env) Get(key string) string { return env[key] }

// FromEnviron converts a list of KEY=value strings, such as os.Environ, into an Env.
func FromEnviron(environ []string) Env {
	env := make(Env, len(environ))
	for _, kv := range environ {
		k, v, _ := strings.Cut(kv, `=`)
		if k == `` {
			continue
		}
		env[k] = v
	}
	return env
}

// Load reads .env, .env.local, .env.<mode> and .env.<mode>.local from dir, later files overriding earlier ones, and
// then overlays the process environment, which always wins.  Missing files are skipped.
func Load(dir, mode string) (Env, error) {
	env := make(Env)
	names := []string{`.env`, `.env.local`}
	if mode != `` {
		names = append(names, `.env.`+mode, `.env.`+mode+`.local`)
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, err
		}
		zlog.Debug().Str(`file`, path).Int(`vars`, len(vars)).Msg(`.env file loaded`)
		for k, v := range vars {
			env[k] = v
		}
	}
	for k, v := range FromEnviron(os.Environ()) {
		env[k] = v
	}
	return env, nil
}

// ErrContinuousIntegration is returned by Check when the dev server would start inside a CI job.
var ErrContinuousIntegration = errors.New(`you should not run the dev server in CI environments, ` +
	`build your assets for production instead; to disable this check set ` + VarBypass + `=1`)

// Check returns an error if the command should not run in env.  Builds are always allowed, as is anything when
// WORDPRESS_BYPASS_ENV_CHECK is "1"; otherwise serving is refused when CI is present, whatever its value.
func Check(cmd Command, env Env) error {
	if cmd == Build || env.Get(VarBypass) == `1` {
		return nil
	}
	if _, ok := env.Lookup(VarCI); ok {
		return ErrContinuousIntegration
	}
	return nil
}
