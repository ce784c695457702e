package envgate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		env  Env
		fail bool
	}{
		{"serve without CI", Serve, Env{}, false},
		{"serve with empty CI", Serve, Env{VarCI: ``}, true},
		{"serve with CI", Serve, Env{VarCI: `true`}, true},
		{"serve with bypass", Serve, Env{VarCI: ``, VarBypass: `1`}, false},
		{"bypass must be 1", Serve, Env{VarCI: ``, VarBypass: `true`}, true},
		{"build with CI", Build, Env{VarCI: `1`}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.cmd, tt.env)
			if tt.fail {
				assert.ErrorIs(t, err, ErrContinuousIntegration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromEnviron(t *testing.T) {
	env := FromEnviron([]string{`CI=`, `APP_URL=https://theme.test`, `=ignored`, `EQ=a=b`})
	v, ok := env.Lookup(VarCI)
	assert.True(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, `https://theme.test`, env.Get(VarAppURL))
	assert.Equal(t, `a=b`, env.Get(`EQ`))
	assert.Len(t, env, 3)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, `.env`), []byte("WPRIG_TEST_A=env\nWPRIG_TEST_B=env\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, `.env.development`), []byte("WPRIG_TEST_B=mode\n"), 0o644))
	t.Setenv(`WPRIG_TEST_C`, `process`)

	env, err := Load(dir, `development`)
	require.NoError(t, err)
	assert.Equal(t, `env`, env.Get(`WPRIG_TEST_A`))
	assert.Equal(t, `mode`, env.Get(`WPRIG_TEST_B`))
	assert.Equal(t, `process`, env.Get(`WPRIG_TEST_C`))
}

func TestDiscoverTLS(t *testing.T) {
	dir := t.TempDir()
	key := filepath.Join(dir, `key.pem`)
	cert := filepath.Join(dir, `cert.pem`)
	require.NoError(t, os.WriteFile(key, []byte(`key`), 0o600))
	require.NoError(t, os.WriteFile(cert, []byte(`cert`), 0o600))

	t.Run("no override", func(t *testing.T) {
		got, err := DiscoverTLS(Env{VarAppURL: `https://theme.test`})
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("discovered", func(t *testing.T) {
		got, err := DiscoverTLS(Env{VarServerKey: key, VarServerCert: cert, VarAppURL: `https://theme.test:8443/wp`})
		require.NoError(t, err)
		assert.Equal(t, `theme.test`, got.Host)
		assert.Equal(t, []byte(`key`), got.Key)
		assert.Equal(t, []byte(`cert`), got.Cert)
	})

	t.Run("missing cert names path", func(t *testing.T) {
		missing := filepath.Join(dir, `nope.pem`)
		_, err := DiscoverTLS(Env{VarServerKey: key, VarServerCert: missing, VarAppURL: `https://theme.test`})
		var tlsErr *TLSError
		require.ErrorAs(t, err, &tlsErr)
		assert.Equal(t, []string{missing}, tlsErr.Missing)
		assert.Contains(t, err.Error(), missing)
	})

	t.Run("only one variable set", func(t *testing.T) {
		_, err := DiscoverTLS(Env{VarServerKey: key, VarAppURL: `https://theme.test`})
		var tlsErr *TLSError
		require.ErrorAs(t, err, &tlsErr)
		assert.Equal(t, []string{VarServerCert + ` (unset)`}, tlsErr.Missing)
		assert.Contains(t, err.Error(), `missing [VITE_DEV_SERVER_CERT (unset)]`)

		_, err = DiscoverTLS(Env{VarServerCert: filepath.Join(dir, `nope.pem`), VarAppURL: `https://theme.test`})
		require.ErrorAs(t, err, &tlsErr)
		assert.Equal(t, []string{VarServerKey + ` (unset)`, filepath.Join(dir, `nope.pem`)}, tlsErr.Missing)
	})

	t.Run("unparsable app url", func(t *testing.T) {
		_, err := DiscoverTLS(Env{VarServerKey: key, VarServerCert: cert, VarAppURL: `::not a url`})
		var tlsErr *TLSError
		require.ErrorAs(t, err, &tlsErr)
		assert.Equal(t, `::not a url`, tlsErr.AppURL)
	})
}
