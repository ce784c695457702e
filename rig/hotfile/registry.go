package hotfile

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	zlog "github.com/rs/zerolog/log"
)

// TerminationSignals are the signals that cause hot files to be removed.
var TerminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

// A Registry terminates its managers when the process is signalled to stop or shuts down normally.  Signal handlers
// are attached at most once per registry, no matter how many managers use it.
type Registry struct {
	// Notify subscribes a channel to signals, defaults to signal.Notify.
	Notify func(ch chan<- os.Signal, sig ...os.Signal)

	// Exit is called with the conventional exit status after managers are terminated by a signal, defaults to os.Exit.
	Exit func(code int)

	once     sync.Once
	mu       sync.Mutex
	managers map[*Manager]struct{}
}

var process = &Registry{}

// Process returns the registry shared by the whole process.
func Process() *Registry { return process }

// Ensure attaches the termination signal handlers if they have not been attached yet.
func (r *Registry) Ensure() {
	r.once.Do(func() {
		notify := r.Notify
		if notify == nil {
			notify = signal.Notify
		}
		ch := make(chan os.Signal, 1)
		notify(ch, TerminationSignals...)
		go func() {
			sig, ok := <-ch
			if !ok {
				return
			}
			r.Signal(sig)
		}()
	})
}

// Signal terminates every tracked manager, then exits the process with 128 plus the signal number.
func (r *Registry) Signal(sig os.Signal) {
	zlog.Debug().Str(`signal`, sig.String()).Msg(`removing hot files`)
	r.Shutdown()
	exit := r.Exit
	if exit == nil {
		exit = os.Exit
	}
	code := 1
	if s, ok := sig.(syscall.Signal); ok {
		code = 128 + int(s)
	}
	exit(code)
}

// Shutdown terminates every tracked manager.  Tasks that run a dev server defer it, since zugzug exits the process
// when a task fails.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for m := range r.managers {
		managers = append(managers, m)
	}
	r.mu.Unlock()
	for _, m := range managers {
		m.Terminate()
	}
}

func (r *Registry) track(m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.managers == nil {
		r.managers = make(map[*Manager]struct{})
	}
	r.managers[m] = struct{}{}
}

func (r *Registry) untrack(m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, m)
}
