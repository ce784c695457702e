// Package hmr notifies browsers that the code they loaded from a dev server has changed.  Pages load the client
// script, which holds a websocket open to the hub and reloads or patches the page when told to.  The same payloads
// are published as server-sent events for tools that only want to watch.
package hmr

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/wprig-go/rig/api"
	"github.com/tmaxmax/go-sse"
	"nhooyr.io/websocket"
)

// Routes served by API.
const (
	ClientPath = `/@vite/client`
	SocketPath = `/@hmr`
	EventsPath = `/@wordpress/events`
)

// Payload types understood by the client script.
const (
	Connected  = `connected`
	FullReload = `full-reload`
	Update     = `update`
	Error      = `error`
)

// A Payload is a message sent to every connected client.
type Payload struct {
	Type    string         `json:"type"`
	Path    string         `json:"path,omitempty"`
	Updates []ModuleUpdate `json:"updates,omitempty"`
	Err     *ErrorPayload  `json:"err,omitempty"`
}

// A ModuleUpdate names a changed output the client can swap without reloading.
type ModuleUpdate struct {
	Type      string `json:"type"` // "css-update" or "js-update"
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
}

// An ErrorPayload describes a failed rebuild.
type ErrorPayload struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

//go:embed client.js
var clientScript []byte

// clientQueue is how many payloads may wait for a slow client before newer ones are dropped.
const clientQueue = 16

// A Hub tracks connected clients.  The zero Hub is ready to use.
type Hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	closed  bool
	events  sse.Server
}

// API returns an api.Option that serves the client script, the websocket and the event stream of hub.
func API(hub *Hub) api.Option {
	return api.Group(
		api.HandleFunc(`GET `+ClientPath, ServeClient),
		api.Handle(`GET `+SocketPath, hub),
		api.Handle(`GET `+EventsPath, hub.Events()),
	)
}

// ServeClient serves the client script.
func ServeClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(`Content-Type`, `text/javascript; charset=utf-8`)
	w.Header().Set(`Cache-Control`, `no-cache`)
	_, _ = w.Write(clientScript)
}

// Events returns a handler that streams every payload as a server-sent event named after its type.
func (hub *Hub) Events() http.Handler { return &hub.events }

// ServeHTTP accepts a websocket connection and forwards payloads to it until either side closes.
func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		hog.For(r).Warn().Err(err).Msg(`HMR websocket rejected`)
		return
	}
	defer func() { _ = c.CloseNow() }()

	ch := hub.subscribe()
	if ch == nil {
		_ = c.Close(websocket.StatusGoingAway, `dev server is shutting down`)
		return
	}
	defer hub.unsubscribe(ch)

	ctx := c.CloseRead(r.Context())
	hello, _ := json.Marshal(Payload{Type: Connected})
	if err := c.Write(ctx, websocket.MessageText, hello); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, `dev server is shutting down`)
				return
			}
			if err := c.Write(ctx, websocket.MessageText, msg); err != nil {
				hog.For(r).Debug().Err(err).Msg(`HMR client went away`)
				return
			}
		}
	}
}

func (hub *Hub) subscribe() chan []byte {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if hub.closed {
		return nil
	}
	if hub.clients == nil {
		hub.clients = make(map[chan []byte]struct{})
	}
	ch := make(chan []byte, clientQueue)
	hub.clients[ch] = struct{}{}
	return ch
}

func (hub *Hub) unsubscribe(ch chan []byte) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if _, ok := hub.clients[ch]; ok {
		delete(hub.clients, ch)
		close(ch)
	}
}

// Clients returns the number of connected websocket clients.
func (hub *Hub) Clients() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.clients)
}

// Send delivers a payload to every connected client and event stream subscriber.  Clients that are too far behind
// miss the payload.
func (hub *Hub) Send(p Payload) error {
	js, err := json.Marshal(p)
	if err != nil {
		return err
	}
	hub.mu.Lock()
	if hub.closed {
		hub.mu.Unlock()
		return nil
	}
	for ch := range hub.clients {
		select {
		case ch <- js:
		default:
		}
	}
	hub.mu.Unlock()

	msg := &sse.Message{Type: sse.Type(p.Type)}
	msg.AppendData(string(js))
	return hub.events.Publish(msg)
}

// Reload tells clients to reload the page.  A path of "*" reloads every page; otherwise an HTML path only reloads
// pages at that path.
func (hub *Hub) Reload(path string) error {
	return hub.Send(Payload{Type: FullReload, Path: path})
}

// Close disconnects every client.  Later payloads are discarded.
func (hub *Hub) Close(ctx context.Context) error {
	hub.mu.Lock()
	if hub.closed {
		hub.mu.Unlock()
		return nil
	}
	hub.closed = true
	for ch := range hub.clients {
		delete(hub.clients, ch)
		close(ch)
	}
	hub.mu.Unlock()
	return hub.events.Shutdown(ctx)
}
