// Package hook defines interfaces that the rig.Hook option recognizes and will apply at various stages of setting up
// and tearing down a rig.
package hook

import (
	"context"
	"net"
	"net/http"
	"slices"
)

// Listener hooks are called when the rig is setting up a new listener.
type Listener interface {
	RigListener(*net.ListenConfig)
}

// Listen hooks replace the listener the rig would create for its address.  The first one wins.
type Listen interface {
	Listen(ctx context.Context) (net.Listener, error)
}

// Server hooks are called when the rig is setting up a new HTTP server.
type Server interface {
	RigServer(*http.Server)
}

// Mux hooks are called when the rig is setting up a new HTTP multiplexer.
type Mux interface {
	RigMux(*http.ServeMux)
}

// Ready hooks are called once the listener is accepting connections, before the first request is served.  An error
// stops the rig.
type Ready interface {
	RigReady(ctx context.Context, addr net.Addr) error
}

// Shutdown hooks are called when the rig stops serving, in reverse order.
type Shutdown interface {
	RigShutdown()
}

// Order returns hooks in their original order, except that each Dependent is moved after the hooks providing the
// names it depends on.  Cycles are not an error; the order is then best effort.
func Order(hooks ...any) []any {
	providers := make(map[string][]int, len(hooks))
	for i, h := range hooks {
		if p, ok := h.(Provider); ok {
			for _, name := range p.Provides() {
				providers[name] = append(providers[name], i)
			}
		}
	}

	ret := make([]any, 0, len(hooks))
	visited := make([]bool, len(hooks))
	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		if d, ok := hooks[i].(Dependent); ok {
			var deps []int
			for _, name := range d.DependsOn() {
				deps = append(deps, providers[name]...)
			}
			slices.Sort(deps) // keep providers in their original order
			for _, j := range deps {
				visit(j)
			}
		}
		ret = append(ret, hooks[i])
	}
	for i := range hooks {
		visit(i)
	}
	return ret
}

// A Provider names what it provides, such as the dev server URL, for Dependent hooks.
type Provider interface {
	Provides() []string
}

// A Dependent hook is called after the hooks that provide the names it depends on.
type Dependent interface {
	DependsOn() []string
}
