//go:build deploy
// +build deploy

package main

import (
	"context"

	"github.com/swdunlop/wprig-go/rig/wordpress"
)

// run builds the theme assets and public/build/manifest.json.
func run(ctx context.Context, p *wordpress.Plugin) error {
	return p.Build(ctx, wordpress.BundlerConfig{}, wordpress.BuildEnv{Mode: `production`})
}
