// Package debugserver implements the inspector surface of spec §4.12: the
// JSON HTTP endpoints listing debuggable targets (/json, /json/list) and
// reporting the version (/json/version), and a WebSocket upgrade that bridges inspector protocol
// messages to and from the engine's own inspector channel as opaque
// passthrough, grounded on original_source's DebuggerModule.cpp and the
// websocket.Conn bridging in websocket.go/runtime.go.
package debugserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Target describes one debuggable script context, matching the shape a
// Chrome DevTools-compatible client expects from /json.
type Target struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	DevtoolsFrontendURL  string `json:"devtoolsFrontendUrl"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Inspector is the per-target bridge to the script engine's own inspector
// channel: SendToInspector delivers one client→engine message, and
// Attach registers the callback the engine uses to deliver engine→client
// messages for as long as the websocket connection is open.
type Inspector interface {
	SendToInspector(msg []byte) error
	Attach(onMessage func(msg []byte)) (detach func())
}

// Server serves the three HTTP JSON endpoints and the WebSocket upgrade
// for every registered target.
type Server struct {
	mu        sync.Mutex
	baseURL   string
	targets   map[string]*Target
	inspector map[string]Inspector
}

// New returns a Server whose websocket/devtools URLs are built against
// baseURL (e.g. "localhost:9229").
func New(baseURL string) *Server {
	return &Server{
		baseURL:   baseURL,
		targets:   make(map[string]*Target),
		inspector: make(map[string]Inspector),
	}
}

// Register adds a debuggable target with id, title and url, backed by
// insp for message passthrough.
func (s *Server) Register(id, title, url string, insp Inspector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wsURL := fmt.Sprintf("ws://%s/%s", s.baseURL, id)
	s.targets[id] = &Target{
		ID:                   id,
		Title:                title,
		Type:                 "node",
		URL:                  url,
		DevtoolsFrontendURL:  fmt.Sprintf("devtools://devtools/bundled/js_app.html?ws=%s/%s", s.baseURL, id),
		WebSocketDebuggerURL: wsURL,
	}
	s.inspector[id] = insp
}

// RegisterAuto is Register with a fresh random id (matching Chrome
// DevTools' own convention of a UUID target id rather than a caller-
// chosen one) and returns it for the caller to hold onto for Unregister.
func (s *Server) RegisterAuto(title, url string, insp Inspector) string {
	id := uuid.NewString()
	s.Register(id, title, url, insp)
	return id
}

// Unregister removes a target (its connection, if any, keeps running
// until the client or engine closes it).
func (s *Server) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets, id)
	delete(s.inspector, id)
}

// ServeHTTP dispatches /json, /json/list, /json/version and the
// per-target WebSocket upgrade.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/json" || r.URL.Path == "/json/list":
		s.serveList(w, r)
	case r.URL.Path == "/json/version":
		s.serveVersion(w, r)
	default:
		s.serveWebSocket(w, r)
	}
}

func (s *Server) serveList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := make([]*Target, 0, len(s.targets))
	for _, t := range s.targets {
		list = append(list, t)
	}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (s *Server) serveVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"Browser":         "tsbridge",
		"Protocol-Version": "1.3",
	})
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path
	if len(id) > 0 && id[0] == '/' {
		id = id[1:]
	}
	s.mu.Lock()
	insp, ok := s.inspector[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	detach := insp.Attach(func(msg []byte) {
		conn.Write(ctx, websocket.MessageText, msg)
	})
	defer detach()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if err := insp.SendToInspector(data); err != nil {
			conn.Close(websocket.StatusInternalError, err.Error())
			return
		}
	}
}
