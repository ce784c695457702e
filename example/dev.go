//go:build !deploy
// +build !deploy

package main

import (
	"context"

	"github.com/swdunlop/wprig-go/rig/wordpress"
)

// run serves the theme assets on localhost:5173 and writes public/hot for the theme's PHP to find.
func run(ctx context.Context, p *wordpress.Plugin) error {
	return p.Serve(ctx, wordpress.BundlerConfig{}, wordpress.BuildEnv{Mode: `development`}, ``)
}
