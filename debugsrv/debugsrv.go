// Package debugsrv is the kernel's read-only introspection surface: an
// HTTP+WebSocket server exposing actor and module tables, the sandbox
// violation feed, and rendered module/quarantine detail pages. It is
// grounded on server/server.go + server/websocket.go's
// Server{connections map[*websocket.Conn]bool, mu} connection-tracking
// shape and golang.org/x/net/websocket handler wiring, generalized from
// one game's "subscribe to room updates" socket to a broadcast-only
// feed of kernel snapshots. Every handler here only reads; nothing it
// exposes can mutate kernel state (that surface belongs to
// kernel/supervisor, reached through a different, privileged path).
package debugsrv

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/lguibr/actorkernel/kernel/kctx"
	"github.com/lguibr/actorkernel/klog"
)

// Server tracks live debug-feed WebSocket connections the same way the
// teacher's server.go tracks subscriber sockets, and wraps the
// KernelContext it reports on.
type Server struct {
	kc *kctx.KernelContext

	connections map[*websocket.Conn]bool
	mu          sync.RWMutex

	broadcastPeriod time.Duration
	httpSrv         *http.Server
}

// New builds a debug server over an already-booted KernelContext. It
// does not start listening; call ListenAndServe.
func New(kc *kctx.KernelContext) *Server {
	return &Server{
		kc:              kc,
		connections:     make(map[*websocket.Conn]bool),
		broadcastPeriod: 500 * time.Millisecond,
	}
}

// openConnection adds ws to the tracking map, mirroring
// server.Server.OpenConnection.
func (s *Server) openConnection(ws *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[ws] = true
	klog.Infof("debugsrv: connection opened %s (total %d)", ws.RemoteAddr(), len(s.connections))
}

// closeConnection removes and closes ws, mirroring
// server.Server.CloseConnection.
func (s *Server) closeConnection(ws *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[ws]; !ok {
		return
	}
	_ = ws.Close()
	delete(s.connections, ws)
	klog.Infof("debugsrv: connection closed %s (total %d)", ws.RemoteAddr(), len(s.connections))
}

// Mux builds the handler tree: JSON snapshots, rendered detail pages,
// and the live feed socket. Kept separate from ListenAndServe so a
// caller embedding debugsrv in a larger mux can mount it under a
// prefix instead.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health-check/", s.handleHealthCheck)
	mux.HandleFunc("/status/", s.handleStatus)
	mux.HandleFunc("/actors/", s.handleActors)
	mux.HandleFunc("/modules/", s.handleModules)
	mux.HandleFunc("/quarantine/", s.handleQuarantine)
	mux.HandleFunc("/violations/", s.handleViolations)
	mux.Handle("/feed", websocket.Handler(s.handleFeed))
	return mux
}

// ListenAndServe starts the HTTP server on addr and blocks until it
// stops, in the same linear boot-then-serve shape main.go uses.
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Mux()}
	klog.Infof("debugsrv: listening on %s", addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops the HTTP server and closes every tracked connection.
func (s *Server) Shutdown() {
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ws := range s.connections {
		_ = ws.Close()
		delete(s.connections, ws)
	}
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func recoverHTTP(w http.ResponseWriter, route string) {
	if rec := recover(); rec != nil {
		klog.Errorf("debugsrv: panic in %s: %v\n%s", route, rec, string(debug.Stack()))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.Errorf("debugsrv: encode response: %v", err)
	}
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
