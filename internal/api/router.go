package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-gl/mathgl/mgl64"

	"lodmesh/internal/chunk"
	"lodmesh/internal/engine"
	"lodmesh/internal/field"
	"lodmesh/internal/geom"
	"lodmesh/internal/render"
)

// EngineInterface defines the engine methods used by the API.
// This interface enables mocking for tests without spinning up the frame loop.
type EngineInterface interface {
	// GetSnapshot returns the latest lock-free snapshot (preferred for stats)
	GetSnapshot() *engine.Snapshot
	Tick() uint64
	SetViewer(p geom.Vec3)

	AddField(shape field.Shape, position geom.Vec3, rotation mgl64.Quat) int
	UpdateField(id int, position geom.Vec3, rotation mgl64.Quat) bool
	RemoveField(id int) bool
	Field(id int) (field.Info, bool)
	Fields() []field.Info

	Chunks() []chunk.Info
	Chunk(id int) (chunk.Info, bool)

	EventLogStats() engine.EventLogStats
}

// MeshSource is the read side of the presented meshes.
type MeshSource interface {
	Mesh(id int) (*render.Mesh, bool)
	Meshes() []*render.Mesh
	Snapshot() (uint64, []*render.Mesh)
	Stats() render.StoreStats
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Engine: eng,
//	    Meshes: store,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	    DisableLogging: true,
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the LOD engine (required)
	Engine EngineInterface

	// Meshes serves presented mesh data (required)
	Meshes MeshSource

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil. If both are nil,
	// DefaultRateLimitConfig applies.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	CORSOrigins []string

	// ExportDir receives snapshots written by POST /api/export.
	// Empty disables the endpoint.
	ExportDir string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the dependencies the handler methods use.
type routerHandlers struct {
	engine    EngineInterface
	meshes    MeshSource
	limiter   *IPRateLimiter
	previews  *render.PreviewCache
	exportDir string
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function is PURE apart from the rate limiter sweep started
// when no RateLimiter is supplied:
//   - No network listeners are opened
//   - No websocket hub runs
//
// This makes it safe to use in tests with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	r.Use(requestMetrics)

	h := &routerHandlers{
		engine:    cfg.Engine,
		meshes:    cfg.Meshes,
		limiter:   rateLimiter,
		previews:  render.NewPreviewCache(render.DefaultMaxPreviews),
		exportDir: cfg.ExportDir,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.handleGetStats)

		// Viewer
		r.Get("/viewer", h.handleGetViewer)
		r.Post("/viewer", h.handleSetViewer)

		// Fields
		r.Get("/fields", h.handleListFields)
		r.Post("/fields", h.handleAddField)
		r.Get("/fields/{id}", h.handleGetField)
		r.Put("/fields/{id}", h.handleUpdateField)
		r.Delete("/fields/{id}", h.handleRemoveField)

		// Chunks and meshes
		r.Get("/chunks", h.handleListChunks)
		r.Get("/chunks/{id}", h.handleGetChunk)
		r.Get("/chunks/{id}/mesh", h.handleGetMesh)
		r.Get("/preview.png", h.handlePreview)
		r.Post("/export", h.handleExport)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return r
}
