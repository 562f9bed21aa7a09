package config

import (
	"reflect"
	"testing"
	"time"
)

func TestDefaultsWithoutEnv(t *testing.T) {
	cfg := Load()

	if cfg.LOD != DefaultLOD() {
		t.Errorf("Expected default LOD config, got %+v", cfg.LOD)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Expected port 3000, got %d", cfg.Server.Port)
	}
	if !cfg.Observability.Enabled || cfg.Observability.DebugAddr != "127.0.0.1:6060" {
		t.Errorf("Expected localhost debug server, got %+v", cfg.Observability)
	}
}

func TestLODFromEnv(t *testing.T) {
	t.Setenv("LOD_MIN_CHUNK_SIZE", "2")
	t.Setenv("LOD_SCALING_FACTOR", "0.5")
	t.Setenv("LOD_CELLS_PER_CHUNK", "32")
	t.Setenv("LOD_MESH_UPDATES_FIRST_FRAME", "10")
	t.Setenv("LOD_ADAPTIVE", "false")
	t.Setenv("LOD_APPROXIMATE", "true")

	cfg := LODFromEnv()
	if cfg.MinChunkSize != 2 || cfg.ScalingFactor != 0.5 || cfg.CellsPerChunk != 32 {
		t.Errorf("Expected overrides applied, got %+v", cfg)
	}
	if cfg.MeshUpdatesFirstFrame != 10 || cfg.MeshUpdatesPerFrame != 1 {
		t.Errorf("Expected budgets 10/1, got %d/%d", cfg.MeshUpdatesFirstFrame, cfg.MeshUpdatesPerFrame)
	}
	if cfg.Adaptive || !cfg.Approximate {
		t.Errorf("Expected adaptive off and approximate on, got %+v", cfg)
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"not a number", "LOD_CELLS_PER_CHUNK", "many"},
		{"single cell", "LOD_CELLS_PER_CHUNK", "1"},
		{"negative size", "LOD_MIN_CHUNK_SIZE", "-4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if cfg := LODFromEnv(); cfg != DefaultLOD() {
				t.Errorf("Expected defaults, got %+v", cfg)
			}
		})
	}
}

func TestServerOriginsFromEnv(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := ServerFromEnv()
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Errorf("Expected %v, got %v", want, cfg.AllowedOrigins)
	}
}

func TestEventLogPathCanBeDisabled(t *testing.T) {
	t.Setenv("EVENT_LOG_PATH", "")
	if cfg := EngineFromEnv(); cfg.EventLogPath != "" {
		t.Errorf("Expected empty event log path, got %q", cfg.EventLogPath)
	}
}

func TestTickInterval(t *testing.T) {
	tests := []struct {
		rate int
		want time.Duration
	}{
		{30, time.Second / 30},
		{60, time.Second / 60},
		{0, time.Second / 30},
	}
	for _, tt := range tests {
		if got := (EngineConfig{TickRate: tt.rate}).TickInterval(); got != tt.want {
			t.Errorf("TickRate %d: expected %v, got %v", tt.rate, tt.want, got)
		}
	}
}
