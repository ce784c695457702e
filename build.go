package main

import (
	"context"

	"github.com/swdunlop/zugzug-go"
	"github.com/swdunlop/zugzug-go/zug/parser"
)

func init() {
	tasks = append(tasks, zugzug.Tasks{
		{Name: "build", Use: "Builds browser assets and their manifest for production", Fn: runBuild(false), Parser: parser.New(
			parser.String(&configFile, "config", "c", "The project file holding the plugin and bundler settings"),
			parser.String(&mode, "mode", "m", "The mode used to pick .env files (default: production)"),
		)},
		{Name: "ssr", Use: "Builds the server-side rendering bundle", Fn: runBuild(true), Parser: parser.New(
			parser.String(&configFile, "config", "c", "The project file holding the plugin and bundler settings"),
			parser.String(&mode, "mode", "m", "The mode used to pick .env files (default: production)"),
		)},
	}...)
}

func runBuild(ssr bool) func(context.Context) error {
	return func(ctx context.Context) error {
		prj, err := loadProject(ctx, `production`)
		if err != nil {
			return err
		}
		return prj.plugin.Build(ctx, prj.user, prj.buildEnv(ssr))
	}
}
