package api

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lodmesh/internal/config"
	"lodmesh/internal/engine"
	"lodmesh/internal/render"
)

// Server is the HTTP API server with the websocket mesh stream.
type Server struct {
	engine      *engine.Engine
	store       *render.MeshStore
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates an API server.
//
// IMPORTANT: Background workers do NOT start until Start() is called, apart
// from the rate limiter sweep.
//
// For testing HTTP endpoints without websocket support, use NewRouter() directly.
func NewServer(eng *engine.Engine, store *render.MeshStore, cfg config.ServerConfig, exportDir string) *Server {
	s := &Server{
		engine: eng,
		store:  store,
		wsHub: NewWebSocketHub(HubConfig{
			MaxConnections: cfg.MaxWSConnections,
			MaxPerIP:       cfg.MaxWSPerIP,
			Origins:        NewOriginPolicy(cfg.AllowedOrigins),
		}),
		rateLimiter: NewIPRateLimiter(RateLimitConfigFrom(cfg)),
	}

	s.router = NewRouter(RouterConfig{
		Engine:      eng,
		Meshes:      store,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.AllowedOrigins,
		ExportDir:   exportDir,
	})

	// The websocket route needs the hub instance, so it is added here rather
	// than in NewRouter.
	s.router.Get("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start runs the websocket hub and serves HTTP until Shutdown. It returns
// nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.store, s.engine.GetSnapshot)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🖼️  Preview: http://localhost%s/api/preview.png", addr)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests and releases background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r, s.store.Snapshot)
}
