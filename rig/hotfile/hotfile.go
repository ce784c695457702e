// Package hotfile maintains the hot file, a plain text file holding the URL of the live dev server.  The host
// application uses the file's presence to decide between the dev server and built assets, so the file is written once
// the dev server is listening and removed when the process terminates.
package hotfile

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// State is the lifecycle state of a Manager.
type State int

const (
	Idle       State = iota // the dev server is not listening yet
	Listening               // the hot file has been written
	Terminated              // the hot file has been removed
)

func (s State) String() string {
	switch s {
	case Idle:
		return `idle`
	case Listening:
		return `listening`
	case Terminated:
		return `terminated`
	}
	return `unknown`
}

// ErrTerminated is returned by Listening after the manager has terminated.
var ErrTerminated = errors.New(`hot file manager has terminated`)

// A Manager owns one hot file.
type Manager struct {
	path     string
	registry *Registry

	mu    sync.Mutex
	state State
	url   string
}

// New returns a manager for the hot file at path.  Termination is handled by the process registry unless another
// registry is provided.
func New(path string, registry ...*Registry) *Manager {
	m := &Manager{path: path, registry: Process()}
	if len(registry) > 0 && registry[0] != nil {
		m.registry = registry[0]
	}
	return m
}

// Path returns the path of the hot file.
func (m *Manager) Path() string { return m.path }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// URL returns the URL written by Listening, or "" if the manager is not listening.
func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Listening {
		return ``
	}
	return m.url
}

// Listening records that the dev server is accepting connections at url, writing url to the hot file.  Any existing
// content is replaced.  Termination handlers are registered with the manager's registry on first use.
func (m *Manager) Listening(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Terminated {
		return ErrTerminated
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(m.path, []byte(url), 0o644); err != nil {
		return err
	}
	m.state, m.url = Listening, url
	m.registry.Ensure()
	m.registry.track(m)
	return nil
}

// Terminate removes the hot file if it exists.  Errors are ignored since the process is exiting anyway.  Terminate may
// be called any number of times.
func (m *Manager) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Terminated {
		return
	}
	m.state = Terminated
	_ = os.Remove(m.path)
	m.registry.untrack(m)
}
