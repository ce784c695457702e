// Package www serves static files from a directory.
package www

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/wprig-go/rig"
	"github.com/swdunlop/wprig-go/rig/api"
)

// Rig returns a rig option that configures a rig to serve static files from the given directory.  The files will
// have an entity tag associated with them that is invalidated when the file changes.  Files are served at every path
// unless At says otherwise.
func Rig(dir string, options ...Option) rig.Option {
	var cfg config
	err := cfg.apply(options)
	if err != nil {
		return func(*rig.Config) error { return err }
	}
	patterns := cfg.patterns
	if len(patterns) == 0 {
		patterns = []string{`GET /`}
	}
	handler := cfg.handler(dir)
	routes := make([]api.Option, len(patterns))
	for i, pattern := range patterns {
		routes[i] = api.Handle(pattern, handler)
	}
	return api.Rig(routes...)
}

// Handler returns a handler that serves files below dir.  Directories, names starting with a dot, names matching a
// Deny pattern and symbolic links that lead outside of dir are never served.
func Handler(dir string, options ...Option) (http.Handler, error) {
	var cfg config
	if err := cfg.apply(options); err != nil {
		return nil, err
	}
	return cfg.handler(dir), nil
}

// An Option adjusts what is served.
type Option func(*config) error

// At serves files at the given http.ServeMux patterns instead of every path.
func At(patterns ...string) Option {
	return func(cfg *config) error {
		cfg.patterns = append(cfg.patterns, patterns...)
		return nil
	}
}

// Deny refuses files whose path, relative to the directory and separated by "/", matches one of the glob patterns.
// "**.pem" matches a pem file at any depth.
func Deny(patterns ...string) Option {
	return func(cfg *config) error {
		for _, pattern := range patterns {
			g, err := glob.Compile(pattern, '/')
			if err != nil {
				return fmt.Errorf(`%w in %q`, err, pattern)
			}
			cfg.deny = append(cfg.deny, g)
		}
		return nil
	}
}

type config struct {
	patterns []string
	deny     []glob.Glob
}

func (cfg *config) apply(options []Option) error {
	for _, option := range options {
		if err := option(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *config) denied(rel string) bool {
	for _, g := range cfg.deny {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (cfg *config) handler(dir string) http.Handler {
	root := dir
	if abs, err := filepath.Abs(dir); err == nil {
		root = abs
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(`/` + r.URL.Path)
		rel := strings.TrimPrefix(name, `/`)
		if hidden(name) || cfg.denied(rel) {
			http.NotFound(w, r)
			return
		}
		file, ok := contained(root, filepath.Join(root, filepath.FromSlash(rel)))
		if !ok {
			hog.For(r).Warn().Str(`file`, name).Msg(`refusing to serve a file outside of the served directory`)
			http.NotFound(w, r)
			return
		}
		f, err := os.Open(file)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set(`ETag`, fmt.Sprintf(`"%x-%x"`, info.ModTime().UnixNano(), info.Size()))
		hog.For(r).Trace().Str(`file`, name).Msg(`serving static file`)
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

// contained resolves symbolic links in file and reports whether the result is still below root.  Missing files are
// reported as contained; opening them fails later.
func contained(root, file string) (string, bool) {
	resolved, err := filepath.EvalSymlinks(file)
	if os.IsNotExist(err) {
		return file, true
	} else if err != nil {
		return ``, false
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return ``, false
	}
	rel, err := filepath.Rel(realRoot, resolved)
	if err != nil || rel == `..` || strings.HasPrefix(rel, `..`+string(filepath.Separator)) {
		return ``, false
	}
	return resolved, true
}

func hidden(name string) bool {
	for _, part := range strings.Split(name, `/`) {
		if strings.HasPrefix(part, `.`) {
			return true
		}
	}
	return false
}
