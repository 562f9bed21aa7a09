// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for LOD tuning and server settings.
//
// IMPORTANT: When changing defaults, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// LOD CONFIGURATION
// =============================================================================

// LODConfig holds chunk subdivision and meshing settings.
type LODConfig struct {
	MinChunkSize  float64 // Edge of the smallest chunk in world units
	ScalingFactor float64 // Target chunk edge per unit of viewer distance
	CellsPerChunk int     // Lattice cells per chunk axis
	WorldSize     float64 // Edge of the root cube

	MeshUpdatesFirstFrame int // Rebuilds allowed on the first frame of a burst
	MeshUpdatesPerFrame   int // Rebuilds allowed on every later frame

	MaxItemsPerNode int // Octree leaf split threshold

	Adaptive    bool // Skip lattice blocks far from the surface
	Approximate bool // Propagate estimated distances into skipped blocks
}

// DefaultLOD returns the default LOD configuration.
func DefaultLOD() LODConfig {
	return LODConfig{
		MinChunkSize:          1,
		ScalingFactor:         0.25,
		CellsPerChunk:         16,
		WorldSize:             65536,
		MeshUpdatesFirstFrame: 64,
		MeshUpdatesPerFrame:   1, // trickle until the backlog drains
		MaxItemsPerNode:       8,
		Adaptive:              true,
		Approximate:           false,
	}
}

// LODFromEnv returns LOD configuration with environment variable overrides.
func LODFromEnv() LODConfig {
	cfg := DefaultLOD()

	if v := getEnvFloat("LOD_MIN_CHUNK_SIZE", 0); v > 0 {
		cfg.MinChunkSize = v
	}
	if v := getEnvFloat("LOD_SCALING_FACTOR", 0); v > 0 {
		cfg.ScalingFactor = v
	}
	if v := getEnvInt("LOD_CELLS_PER_CHUNK", 0); v > 1 {
		cfg.CellsPerChunk = v
	}
	if v := getEnvFloat("LOD_WORLD_SIZE", 0); v > 0 {
		cfg.WorldSize = v
	}
	if v := getEnvInt("LOD_MESH_UPDATES_FIRST_FRAME", 0); v > 0 {
		cfg.MeshUpdatesFirstFrame = v
	}
	if v := getEnvInt("LOD_MESH_UPDATES_PER_FRAME", 0); v > 0 {
		cfg.MeshUpdatesPerFrame = v
	}
	if v := getEnvInt("LOD_OCTREE_MAX_ITEMS", 0); v > 0 {
		cfg.MaxItemsPerNode = v
	}
	if os.Getenv("LOD_ADAPTIVE") == "false" {
		cfg.Adaptive = false
	}
	if os.Getenv("LOD_APPROXIMATE") == "true" {
		cfg.Approximate = true
	}

	return cfg
}

// =============================================================================
// ENGINE CONFIGURATION
// =============================================================================

// EngineConfig holds frame loop settings.
type EngineConfig struct {
	TickRate         int     // Frames per second
	EventLogPath     string  // JSONL event log, empty disables it
	EventLogRate     float64 // Events per second admitted to the log
	EventLogBurst    int
	MeshEventBacklog int // Mesh events buffered for websocket clients
}

// DefaultEngine returns the default engine configuration.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		TickRate:         30,
		EventLogPath:     "events.jsonl",
		EventLogRate:     500,
		EventLogBurst:    1000,
		MeshEventBacklog: 4096,
	}
}

// EngineFromEnv returns engine configuration with environment variable overrides.
func EngineFromEnv() EngineConfig {
	cfg := DefaultEngine()

	if v := getEnvInt("ENGINE_TICK_RATE", 0); v > 0 {
		cfg.TickRate = v
	}
	if v, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		cfg.EventLogPath = v
	}
	if v := getEnvFloat("EVENT_LOG_RATE", 0); v > 0 {
		cfg.EventLogRate = v
	}
	if v := getEnvInt("EVENT_LOG_BURST", 0); v > 0 {
		cfg.EventLogBurst = v
	}
	if v := getEnvInt("MESH_EVENT_BACKLOG", 0); v > 0 {
		cfg.MeshEventBacklog = v
	}

	return cfg
}

// TickInterval returns the duration of one frame.
func (c EngineConfig) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.TickRate)
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port             int
	AllowedOrigins   []string
	RequestsPerSec   float64 // Per-IP API rate
	RequestBurst     int
	MaxWSConnections int // Total websocket clients
	MaxWSPerIP       int
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:             3000,
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		RequestsPerSec:   20,
		RequestBurst:     40,
		MaxWSConnections: 500,
		MaxWSPerIP:       10,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := getEnvFloat("API_RATE_LIMIT", 0); v > 0 {
		cfg.RequestsPerSec = v
	}
	if v := getEnvInt("API_RATE_BURST", 0); v > 0 {
		cfg.RequestBurst = v
	}
	if v := getEnvInt("MAX_WS_CONNECTIONS", 0); v > 0 {
		cfg.MaxWSConnections = v
	}
	if v := getEnvInt("MAX_WS_PER_IP", 0); v > 0 {
		cfg.MaxWSPerIP = v
	}

	return cfg
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig holds debug server settings.
type ObservabilityConfig struct {
	Enabled   bool
	DebugAddr string // Must stay on localhost
}

// DefaultObservability returns the default observability configuration.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:   true,
		DebugAddr: "127.0.0.1:6060",
	}
}

// ObservabilityFromEnv returns observability configuration with environment
// variable overrides.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	if v := os.Getenv("DEBUG_ADDR"); v != "" {
		cfg.DebugAddr = v
	}

	return cfg
}

// =============================================================================
// EXPORT & SCENE CONFIGURATION
// =============================================================================

// ExportConfig holds mesh snapshot settings.
type ExportConfig struct {
	Dir string // Snapshot directory
}

// DefaultExport returns the default export configuration.
func DefaultExport() ExportConfig {
	return ExportConfig{Dir: "exports"}
}

// ExportFromEnv returns export configuration with environment variable overrides.
func ExportFromEnv() ExportConfig {
	cfg := DefaultExport()
	if v := os.Getenv("EXPORT_DIR"); v != "" {
		cfg.Dir = v
	}
	return cfg
}

// SceneConfig names the scene file loaded at startup.
type SceneConfig struct {
	Path string // Empty starts with no fields
}

// SceneFromEnv returns the scene configuration from the environment.
func SceneFromEnv() SceneConfig {
	return SceneConfig{Path: os.Getenv("SCENE_PATH")}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	LOD           LODConfig
	Engine        EngineConfig
	Server        ServerConfig
	Observability ObservabilityConfig
	Export        ExportConfig
	Scene         SceneConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		LOD:           LODFromEnv(),
		Engine:        EngineFromEnv(),
		Server:        ServerFromEnv(),
		Observability: ObservabilityFromEnv(),
		Export:        ExportFromEnv(),
		Scene:         SceneFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
