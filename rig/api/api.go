// Package api assembles handlers and middleware into a rig's HTTP multiplexer.
package api

import (
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/swdunlop/wprig-go/rig"
)

// Rig returns a rig option that adds the routes described by the given options to the rig's multiplexer.
func Rig(options ...Option) rig.Option {
	var rt routes
	err := rt.apply(options...)
	return func(r *rig.Config) error {
		if err != nil {
			return err
		}
		r.Hook(&rt)
		return nil
	}
}

// An Option adds routes or middleware.
type Option func(*routes) error

// Use wraps every handler added after it with the given middleware.  Middleware added first runs first.
//
// Any middleware that takes a http.Handler and returns a http.Handler can be used, such as the ones in zerolog's hlog.
func Use(fn func(http.Handler) http.Handler) Option {
	return func(rt *routes) error {
		rt.middleware = append(rt.middleware, fn)
		return nil
	}
}

// HandleFunc routes requests matching a http.ServeMux pattern to fn.
func HandleFunc(pattern string, fn func(w http.ResponseWriter, r *http.Request)) Option {
	return Handle(pattern, http.HandlerFunc(fn))
}

// Handle routes requests matching a http.ServeMux pattern to handler.
func Handle(pattern string, handler http.Handler) Option {
	return func(rt *routes) error {
		for i := len(rt.middleware) - 1; i >= 0; i-- {
			handler = rt.middleware[i](handler)
		}
		rt.routes = append(rt.routes, route{pattern, handler})
		return nil
	}
}

// Group applies options so that middleware they add does not affect handlers outside of the group.
func Group(options ...Option) Option {
	return func(rt *routes) error {
		saved := rt.middleware
		defer func() { rt.middleware = saved }()
		return rt.apply(options...)
	}
}

type routes struct {
	middleware []func(http.Handler) http.Handler
	routes     []route
}

type route struct {
	pattern string
	handler http.Handler
}

func (rt *routes) apply(options ...Option) error {
	for _, option := range options {
		if err := option(rt); err != nil {
			return err
		}
	}
	return nil
}

// RigMux implements hook.Mux.
func (rt *routes) RigMux(mux *http.ServeMux) {
	for _, it := range rt.routes {
		mux.Handle(it.pattern, it.handler)
	}
}

// AccessLog returns middleware that attaches log to each request and logs each response at the given level, so
// handlers that log through the request context carry its method.
func AccessLog(log zerolog.Logger, level zerolog.Level) func(http.Handler) http.Handler {
	withLogger := hlog.NewHandler(log)
	withFields := hlog.MethodHandler(`method`)
	withAccess := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).WithLevel(level).
			Str(`path`, r.URL.Path).
			Int(`status`, status).
			Int(`size`, size).
			Dur(`duration`, duration).
			Msg(`request`)
	})
	return func(next http.Handler) http.Handler {
		return withLogger(withFields(withAccess(next)))
	}
}

// CORS returns middleware that lets pages from origins accepted by allow use responses from the handlers it wraps.
// A nil allow accepts every origin.  Preflight requests are answered directly, including requests for access to a
// private network.
func CORS(allow func(origin string) bool) func(http.Handler) http.Handler {
	if allow == nil {
		allow = func(string) bool { return true }
	}
	return cors.New(cors.Options{
		AllowOriginFunc:     allow,
		AllowedMethods:      []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders:      []string{`*`},
		AllowPrivateNetwork: true,
	}).Handler
}
