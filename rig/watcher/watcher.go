// Package watcher reports changes to files below a set of directories, filtered by glob patterns.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	zlog "github.com/rs/zerolog/log"
)

// Start a watcher with the provided options.
func Start(options ...Option) (Interface, error) {
	wr := &watcher{}
	for _, option := range options {
		if err := option(wr); err != nil {
			return nil, err
		}
	}
	if err := wr.start(); err != nil {
		return nil, err
	}
	return wr, nil
}

// An Option adjusts a watcher before it starts.
type Option func(*watcher) error

// Include limits alerts to files matching one of the patterns.  Patterns are matched against paths relative to the
// watched directory, using "/" as the separator, so "views/**" matches every file below views.
// Without patterns, every file is included.
func Include(patterns ...string) Option {
	return func(wr *watcher) (err error) {
		wr.includes, err = compile(wr.includes, patterns)
		return
	}
}

// Exclude suppresses alerts for files matching one of the patterns, even if they are included.
// Without patterns, names starting with a dot are excluded.
func Exclude(patterns ...string) Option {
	return func(wr *watcher) (err error) {
		wr.excludes, err = compile(wr.excludes, patterns)
		return
	}
}

func compile(seq []glob.Glob, patterns []string) ([]glob.Glob, error) {
	for _, pattern := range patterns {
		g, err := glob.Compile(filepath.ToSlash(pattern), '/')
		if err != nil {
			return nil, fmt.Errorf(`%w in %q`, err, pattern)
		}
		seq = append(seq, g)
	}
	return seq, nil
}

// Directory adds directories to watch recursively.  Directories starting with a dot and node_modules directories are
// not descended into.  Without directories, the working directory is watched.
func Directory(paths ...string) Option {
	return func(wr *watcher) error {
		wr.directories = append(wr.directories, paths...)
		return nil
	}
}

// Interface describes a running watcher.
type Interface interface {
	// Alert delivers the name of each changed file that passes the filters.  Changes are dropped while nobody is
	// receiving.
	Alert() <-chan string
	Shutdown()
}

type watcher struct {
	includes    []glob.Glob
	excludes    []glob.Glob
	directories []string

	fsnotify   *fsnotify.Watcher
	alertCh    chan string
	shutdownCh chan struct{}
	doneCh     chan struct{} // closed when the process loop exits
}

var defaultExcludes = []glob.Glob{glob.MustCompile(`.*`, '/'), glob.MustCompile(`**/.*`, '/')}

func (wr *watcher) start() (err error) {
	if len(wr.directories) == 0 {
		wr.directories = []string{`.`}
	}
	if len(wr.excludes) == 0 {
		wr.excludes = defaultExcludes
	}
	wr.fsnotify, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range wr.directories {
		if err := wr.addTree(dir, nil); err != nil {
			wr.fsnotify.Close()
			return err
		}
	}
	wr.alertCh = make(chan string)
	wr.shutdownCh = make(chan struct{})
	wr.doneCh = make(chan struct{})
	go wr.process()
	return nil
}

// addTree watches dir and the directories below it, calling found for every file already in them.
func (wr *watcher) addTree(dir string, found func(name string)) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case !entry.IsDir():
			if found != nil {
				found(path)
			}
			return nil
		case path != dir && skipDir(entry.Name()):
			return filepath.SkipDir
		}
		return wr.fsnotify.Add(path)
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, `.`) || name == `node_modules`
}

func (wr *watcher) Alert() <-chan string { return wr.alertCh }

func (wr *watcher) Shutdown() {
	select {
	case wr.shutdownCh <- struct{}{}:
	case <-wr.doneCh:
	}
}

func (wr *watcher) process() {
	defer close(wr.doneCh)
	defer wr.fsnotify.Close()
	for {
		select {
		case <-wr.shutdownCh:
			return
		case event, ok := <-wr.fsnotify.Events:
			if !ok {
				return
			}
			wr.handle(event)
		case err, ok := <-wr.fsnotify.Errors:
			if ok {
				zlog.Warn().Err(err).Msg(`file watcher error`)
			}
		}
	}
}

func (wr *watcher) handle(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if !info.IsDir() {
			wr.alert(event.Name)
		} else if !skipDir(info.Name()) {
			// a directory moved or copied into place may already hold files.
			if err := wr.addTree(event.Name, wr.alert); err != nil {
				zlog.Warn().Err(err).Str(`dir`, event.Name).Msg(`cannot watch new directory`)
			}
		}
	case event.Has(fsnotify.Write), event.Has(fsnotify.Rename):
		wr.alert(event.Name)
	case event.Has(fsnotify.Remove):
		_ = wr.fsnotify.Remove(event.Name)
		wr.alert(event.Name)
	}
}

func (wr *watcher) alert(name string) {
	if !wr.shouldInclude(name) {
		return
	}
	select {
	case wr.alertCh <- name:
	default:
	}
}

func (wr *watcher) shouldInclude(name string) bool {
	rel := wr.relative(name)
	matches := func(seq []glob.Glob) bool {
		for _, g := range seq {
			if g.Match(rel) {
				return true
			}
		}
		return false
	}
	if len(wr.includes) > 0 && !matches(wr.includes) {
		return false
	}
	return !matches(wr.excludes)
}

// relative returns name relative to the watched directory containing it, with forward slashes.
func (wr *watcher) relative(name string) string {
	for _, dir := range wr.directories {
		rel, err := filepath.Rel(dir, name)
		if err == nil && rel != `..` && !strings.HasPrefix(rel, `..`+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(name)
}
