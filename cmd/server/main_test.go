package main

import (
	"testing"

	"lodmesh/internal/chunk"
	"lodmesh/internal/config"
)

func TestLODSettingsFromConfig(t *testing.T) {
	cfg := config.DefaultLOD()
	cfg.CellsPerChunk = 8
	cfg.MaxItemsPerNode = 4
	cfg.Approximate = true

	s := lodSettings(cfg)
	if s.CellsPerChunk != 8 || s.Octree.MaxItemsPerNode != 4 || !s.Approximate {
		t.Errorf("Expected overrides to carry through, got %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Expected valid settings, got %v", err)
	}
	if _, err := chunk.NewManager(s, nil); err != nil {
		t.Errorf("Expected manager from default config, got %v", err)
	}
}

func TestLODSettingsKeepsOctreeDefault(t *testing.T) {
	cfg := config.DefaultLOD()
	cfg.MaxItemsPerNode = 0

	if s := lodSettings(cfg); s.Octree.MaxItemsPerNode != chunk.DefaultSettings().Octree.MaxItemsPerNode {
		t.Errorf("Expected default octree split threshold, got %d", s.Octree.MaxItemsPerNode)
	}
}
