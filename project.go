package main

import (
	"context"
	"path/filepath"

	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/wprig-go/rig/envgate"
	"github.com/swdunlop/wprig-go/rig/wordpress"
)

var (
	configFile = `wordpress.yaml`
	mode       string
)

// A project is a loaded project file with the environment of its directory.
type project struct {
	plugin *wordpress.Plugin
	user   wordpress.BundlerConfig
	env    envgate.Env
	root   string
	mode   string
}

func loadProject(ctx context.Context, defaultMode string) (*project, error) {
	path, err := filepath.Abs(configFile)
	if err != nil {
		return nil, err
	}
	prj := &project{root: filepath.Dir(path), mode: mode}
	if prj.mode == `` {
		prj.mode = defaultMode
	}
	prj.env, err = envgate.Load(prj.root, prj.mode)
	if err != nil {
		return nil, err
	}
	cfg, user, err := wordpress.Load(path)
	if err != nil {
		return nil, err
	}
	prj.user = *user
	prj.plugin, err = wordpress.New(cfg, wordpress.Env(prj.env), wordpress.Root(prj.root))
	if err != nil {
		return nil, err
	}
	hog.From(ctx).Debug().Str(`config`, path).Str(`mode`, prj.mode).Msg(`project loaded`)
	return prj, nil
}

func (prj *project) buildEnv(ssr bool) wordpress.BuildEnv {
	return wordpress.BuildEnv{Mode: prj.mode, IsSSRBuild: ssr}
}
