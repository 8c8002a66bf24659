// Package httpserver is the process front door: it upgrades /ws
// connections into session.Run goroutines and serves /health and
// /stats, mirroring the teacher's cmd/server/main.go router/CORS/
// shutdown wiring (mux.NewRouter, rate-limited routes, rs/cors,
// SecurityHeaders, graceful http.Server.Shutdown) scaled down to the
// three routes this spec needs.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"colosseum/internal/lobby"
	"colosseum/internal/session"
)

// connCounter tracks the number of live WebSocket sessions for /stats.
type connCounter struct{ n int64 }

func (c *connCounter) inc()     { atomic.AddInt64(&c.n, 1) }
func (c *connCounter) dec()     { atomic.AddInt64(&c.n, -1) }
func (c *connCounter) get() int64 { return atomic.LoadInt64(&c.n) }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Peers are arbitrary programs speaking the wire protocol, not only
	// browsers; the origin check browsers enforce buys nothing here, and
	// spec.md names CORS as relevant only to the auxiliary endpoints.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Config configures the listener and the auxiliary endpoints.
type Config struct {
	BindAddress      string
	ListenPort       int
	UnixDomainSocket bool
	CORSOrigins      []string
	SessionDeps      session.Deps
	Lobby            *lobby.Lobby
	Logger           *slog.Logger
}

// Server owns the listener and the actor-wiring needed to serve it.
type Server struct {
	cfg     Config
	log     *slog.Logger
	http    *http.Server
	limiter *rateLimiter
	started time.Time

	active *connCounter
}

// New builds a Server; call Serve to accept connections.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		log:     log,
		limiter: newRateLimiter(),
		started: time.Now(),
		active:  &connCounter{},
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.limiter.handler(wsUpgradeLimit, clientIP, s.handleWebSocket)).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet},
	})

	aux := router.NewRoute().Subrouter()
	aux.Use(corsHandler.Handler)
	aux.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	aux.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet, http.MethodOptions)

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.ListenPort)
	if cfg.UnixDomainSocket {
		addr = cfg.BindAddress
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      securityHeaders(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Serve blocks accepting connections until ctx is cancelled, then
// drains in-flight requests for up to 30s before returning.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "address", s.http.Addr, "unixSocket", s.cfg.UnixDomainSocket)
		errCh <- s.http.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.limiter.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpserver: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("httpserver: serve: %w", err)
		}
		return nil
	}
}

// listen binds either a unix socket (unlinking any stale one first, per
// spec.md's "unlinked and re-created with permissive mode") or a TCP
// address, matching --unix-domain-socket treating bind-address as a path.
func (s *Server) listen() (net.Listener, error) {
	if !s.cfg.UnixDomainSocket {
		return net.Listen("tcp", s.http.Addr)
	}
	path := s.cfg.BindAddress
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("httpserver: removing stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("httpserver: listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o777); err != nil {
		ln.Close()
		return nil, fmt.Errorf("httpserver: chmod %s: %w", path, err)
	}
	return ln, nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err, "peer", clientIP(r))
		return
	}

	peer := clientIP(r)
	s.active.inc()
	defer s.active.dec()

	s.log.Info("session opened", "peer", peer)
	session.Run(r.Context(), conn, s.cfg.SessionDeps)
	s.log.Info("session closed", "peer", peer)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	})
}

// handleStats reports live match/connection counts, mirroring the
// /stats JSON endpoint pattern the pack uses for operational visibility.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	matches := s.cfg.Lobby.GetList()
	running, waiting, spectators := 0, 0, 0
	for _, m := range matches {
		if m.Running {
			running++
		} else {
			waiting++
		}
		spectators += m.Spectators
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"connections":    s.active.get(),
		"matches":        len(matches),
		"matchesRunning": running,
		"matchesWaiting": waiting,
		"spectators":     spectators,
		"uptime":         time.Since(s.started).String(),
	})
}
