// Command example builds the assets of a small WordPress theme with the wordpress package directly, rather than
// through a project file.  Run it from this directory; the deploy build tag builds for production instead of
// serving.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	zlog "github.com/rs/zerolog/log"
	"github.com/swdunlop/wprig-go/rig/hotfile"
	"github.com/swdunlop/wprig-go/rig/wordpress"
)

var theme = wordpress.Config{
	Namespace:       `example-theme`,
	PublicDirectory: `public`,
	Input:           []string{`resources/js/app.js`, `resources/css/app.css`},
	Refresh: wordpress.RefreshConfigs(wordpress.RefreshConfig{
		Paths: []string{`views/**`, `*.php`},
	}),
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer hotfile.Process().Shutdown()

	p, err := wordpress.New(&theme)
	if err != nil {
		zlog.Fatal().Err(err).Msg(`invalid theme configuration`)
	}
	err = run(ctx, p)
	if err != nil {
		zlog.Fatal().Err(err).Msg(`example failed`)
	}
}
