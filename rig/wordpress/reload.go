package wordpress

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/swdunlop/wprig-go/rig"
	"github.com/swdunlop/wprig-go/rig/hmr"
)

// settle is how long a reload waits for further changes, since editors often write a file more than once.
const settle = 25 * time.Millisecond

// watchRefresh asks the rig to watch every refresh path and reload pages when one changes.
func (p *Plugin) watchRefresh(r *rig.Config) error {
	for _, rc := range p.cfg.Refresh {
		root := p.absRoot()
		if rc.Options != nil && rc.Options.Root != `` {
			root = p.path(rc.Options.Root)
		}
		rl := &reloader{hub: p.hub, root: root, options: rc.Options}
		for dir, patterns := range groupByBase(rc.Paths) {
			dir = filepath.Join(root, filepath.FromSlash(dir))
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				zlog.Warn().Str(`dir`, dir).Strs(`patterns`, patterns).Msg(`not watching a missing refresh directory`)
				continue
			}
			if err := r.Watch(rl.changed, dir, patterns...); err != nil {
				return err
			}
		}
	}
	return nil
}

// groupByBase splits glob patterns into the directory before their first wildcard and the rest of the pattern, so
// only those directories need to be watched.
func groupByBase(patterns []string) map[string][]string {
	ret := make(map[string][]string)
	for _, pattern := range patterns {
		base, rest := globBase(pattern)
		ret[base] = append(ret[base], rest)
	}
	return ret
}

func globBase(pattern string) (base, rest string) {
	parts := strings.Split(path.Clean(filepath.ToSlash(pattern)), `/`)
	i := 0
	for i < len(parts)-1 && !strings.ContainsAny(parts[i], `*?[{`) {
		i++
	}
	base = strings.Join(parts[:i], `/`)
	if base == `` {
		base = `.`
	}
	return base, strings.Join(parts[i:], `/`)
}

// A reloader sends a full reload after a refresh path changes, once changes have settled.
type reloader struct {
	hub     *hmr.Hub
	root    string
	options *ReloadOptions

	mu    sync.Mutex
	timer *time.Timer
}

func (rl *reloader) changed(name string) {
	reload := `*`
	if !rl.options.AlwaysReload() {
		if rel, err := filepath.Rel(rl.root, name); err == nil {
			reload = `/` + filepath.ToSlash(rel)
		}
	}
	delay := settle
	if rl.options != nil && rl.options.Delay > delay {
		delay = rl.options.Delay
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.timer != nil {
		rl.timer.Stop()
	}
	rl.timer = time.AfterFunc(delay, func() {
		zlog.Info().Str(`file`, name).Msg(`page reload`)
		if err := rl.hub.Reload(reload); err != nil {
			zlog.Warn().Err(err).Msg(`could not notify browsers`)
		}
	})
}
