package esbuild

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdunlop/wprig-go/rig"
)

func writeEntry(t *testing.T, dir, src string) string {
	t.Helper()
	path := filepath.Join(dir, `app.js`)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestCheck(t *testing.T) {
	_, err := Build(EntryPoint(`app.js`))
	assert.ErrorContains(t, err, `no output`)
	_, err = Build(Output(t.TempDir()))
	assert.ErrorContains(t, err, `no entry points`)
	_, err = rig.New(Rig(Output(t.TempDir())))
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	entry := writeEntry(t, dir, `export const greeting = 'hello'; console.log(greeting);`)
	out := filepath.Join(dir, `out`)

	ret, err := Build(EntryPoint(entry), Output(out), BuildOption(func(opts *esbuild.BuildOptions) {
		opts.Metafile = true
	}))
	require.NoError(t, err)
	assert.NotEmpty(t, ret.Metafile)
	data, err := os.ReadFile(filepath.Join(out, `app.js`))
	require.NoError(t, err)
	assert.Contains(t, string(data), `hello`)
}

func TestBuildError(t *testing.T) {
	dir := t.TempDir()
	entry := writeEntry(t, dir, `import './missing.js';`)
	_, err := Build(EntryPoint(entry), Output(filepath.Join(dir, `out`)))
	require.Error(t, err)
	assert.True(t, IsBuildError(err))
	assert.Contains(t, err.Error(), `missing.js`)
}

func TestBuildErrorMessage(t *testing.T) {
	assert.Equal(t, `esbuild failed`, (&BuildError{}).Error())
	one := esbuild.Message{Text: `boom`}
	assert.Equal(t, `esbuild: boom`, (&BuildError{Messages: []esbuild.Message{one}}).Error())
	assert.Equal(t, `esbuild: boom (and 1 more errors)`,
		(&BuildError{Messages: []esbuild.Message{one, one}}).Error())
	assert.False(t, IsBuildError(context.Canceled))
}

func TestPrintMessages(t *testing.T) {
	var buf bytes.Buffer
	printMessages(&buf, `!!`, nil)
	assert.Empty(t, buf.String())

	printMessages(&buf, `!!`, []esbuild.Message{
		{Text: "unexpected \"}\"", Location: &esbuild.Location{File: `app.js`, Line: 3, Column: 7}},
		{Text: "two\nlines"},
	})
	assert.Equal(t, "!! esbuild: app.js:3:7: unexpected \"}\"\n"+
		"   esbuild: two\n            lines\n", buf.String())
}

func TestRigWatches(t *testing.T) {
	dir := t.TempDir()
	entry := writeEntry(t, dir, `console.log('first');`)
	out := filepath.Join(dir, `out`)

	ended := make(chan int, 8)
	cfg, err := rig.New(Rig(EntryPoint(entry), Output(out), Plugin(esbuild.Plugin{
		Name: `count`,
		Setup: func(build esbuild.PluginBuild) {
			build.OnEnd(func(result *esbuild.BuildResult) (esbuild.OnEndResult, error) {
				select {
				case ended <- len(result.Errors):
				default:
				}
				return esbuild.OnEndResult{}, nil
			})
		},
	})))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cfg.Serve(ctx, `127.0.0.1:0`) }()

	select {
	case n := <-ended:
		assert.Zero(t, n)
	case <-time.After(10 * time.Second):
		t.Fatal(`no build finished`)
	}
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(out, `app.js`))
		return err == nil && bytes.Contains(data, []byte(`first`))
	}, 5*time.Second, 20*time.Millisecond)

	writeEntry(t, dir, `console.log('second');`)
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(out, `app.js`))
		return err == nil && bytes.Contains(data, []byte(`second`))
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal(`rig did not stop`)
	}
}
