package api

import (
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lodmesh/internal/chunk"
	"lodmesh/internal/config"
)

// Metrics with bounded cardinality (no per-chunk or per-field labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lod_tick_duration_seconds",
		Help:    "Time spent in one manager update",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	chunkGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lod_chunks",
		Help: "Chunks by pipeline state",
	}, []string{"state"}) // Bounded: "live", "visible", "backlog", "removing"

	fieldCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lod_fields",
		Help: "Live fields",
	})

	rebuildTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lod_mesh_rebuilds_total",
		Help: "Chunk meshes extracted",
	})

	rescaleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lod_rescales_total",
		Help: "Chunks replaced because the viewer moved",
	})

	extractSamples = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lod_last_extract_samples",
		Help: "Field samples taken by the most recent extraction",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})

	wsBroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_broadcast_dropped_total",
		Help: "Best-effort broadcasts dropped because the hub was backed up",
	})

	wsMeshResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_mesh_resyncs_total",
		Help: "Full mesh set resends after the mesh event queue overflowed",
	})
)

// StartDebugServer starts the internal observability server
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg config.ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	addr := cfg.DebugAddr
	if !isLoopback(addr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Println("⚠️ Debug server forced to localhost for security")
		addr = config.DefaultObservability().DebugAddr
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	go func() {
		log.Printf("📊 Debug server starting on %s", addr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", addr)
		log.Printf("   - metrics: http://%s/metrics", addr)

		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// EngineMetrics exports manager counters to Prometheus. It satisfies
// engine.Metrics.
type EngineMetrics struct {
	mu       sync.Mutex
	rebuilds uint64
	rescales uint64
}

// NewEngineMetrics creates a metrics sink.
func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{}
}

// ObserveTick records one frame.
func (m *EngineMetrics) ObserveTick(took time.Duration, s chunk.Stats) {
	tickDuration.Observe(took.Seconds())

	chunkGauge.WithLabelValues("live").Set(float64(s.Chunks))
	chunkGauge.WithLabelValues("visible").Set(float64(s.Visible))
	chunkGauge.WithLabelValues("backlog").Set(float64(s.Backlog))
	chunkGauge.WithLabelValues("removing").Set(float64(s.Removing))
	fieldCount.Set(float64(s.Fields))
	extractSamples.Set(float64(s.LastExtract.Samples))

	// Counters only move forward, so export the deltas.
	m.mu.Lock()
	if s.Rebuilds > m.rebuilds {
		rebuildTotal.Add(float64(s.Rebuilds - m.rebuilds))
		m.rebuilds = s.Rebuilds
	}
	if s.Rescales > m.rescales {
		rescaleTotal.Add(float64(s.Rescales - m.rescales))
		m.rescales = s.Rescales
	}
	m.mu.Unlock()
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// requestMetrics records latency per route pattern once chi has matched it.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// RecordBroadcastDropped counts a best-effort broadcast the hub had no room for
func RecordBroadcastDropped() {
	wsBroadcastDropped.Inc()
}

// RecordMeshResync counts a full mesh set resend
func RecordMeshResync() {
	wsMeshResyncs.Inc()
}
