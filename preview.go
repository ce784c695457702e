package main

import (
	"context"
	"path/filepath"

	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/wprig-go/rig"
	"github.com/swdunlop/wprig-go/rig/local"
	"github.com/swdunlop/wprig-go/rig/www"
	"github.com/swdunlop/zugzug-go"
	"github.com/swdunlop/zugzug-go/zug/parser"
)

// previewAddress is where built assets are served when LISTEN_ADDRESS is not set.
const previewAddress = `localhost:4173`

func init() {
	tasks = append(tasks, zugzug.Tasks{
		{Name: "preview", Use: "Serves the built public directory without rebuilding it", Fn: runPreview, Parser: parser.New(
			parser.String(&configFile, "config", "c", "The project file holding the plugin and bundler settings"),
			parser.String(&mode, "mode", "m", "The mode used to pick .env files (default: production)"),
		), Settings: listenSettings},
	}...)
}

func runPreview(ctx context.Context) error {
	prj, err := loadProject(ctx, `production`)
	if err != nil {
		return err
	}
	dir := filepath.Join(prj.root, filepath.FromSlash(prj.plugin.ResolvedConfig().PublicDirectory))
	options, _, err := listenOptions()
	if err != nil {
		return err
	}
	if len(options) == 0 {
		options = append(options, local.Rig(local.TCP(previewAddress), local.NextFree(10)))
	}
	hog.From(ctx).Info().Str(`dir`, dir).Msg(`previewing built assets`)
	return rig.Serve(ctx, ``, append(options, www.Rig(dir))...)
}
