package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lodmesh/internal/api"
	"lodmesh/internal/chunk"
	"lodmesh/internal/config"
	"lodmesh/internal/engine"
	"lodmesh/internal/render"
	"lodmesh/internal/scene"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🔷 ================================")
	log.Println("🔷  LODMESH - SDF LOD SERVER")
	log.Println("🔷 ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	lodCfg := appConfig.LOD
	serverCfg := appConfig.Server

	// The store is the presenter: meshes land there and stream out over /ws.
	store := render.NewMeshStore(render.NewEventQueue[render.Event](appConfig.Engine.MeshEventBacklog))
	settings := lodSettings(lodCfg)
	manager, err := chunk.NewManager(settings, store)
	if err != nil {
		log.Fatalf("❌ Invalid LOD settings: %v", err)
	}
	log.Printf("🔷 LOD: world %.0f, %d levels, min chunk %.2f, %d cells/chunk, scaling %.2f",
		manager.World().Size(), manager.Levels(), settings.MinSize, settings.CellsPerChunk, settings.ScalingFactor)
	log.Printf("🔷 Budget: %d rebuilds first frame, %d per frame after (adaptive=%v, approximate=%v)",
		settings.MeshUpdatesFirstFrame, settings.MeshUpdatesPerFrame, settings.Adaptive, settings.Approximate)

	eng := engine.NewEngine(appConfig.Engine, manager)
	eng.SetMetrics(api.NewEngineMetrics())

	// Start event log
	if err := eng.StartEventLog(appConfig.Engine.EventLogPath); err != nil {
		log.Printf("⚠️ Event log disabled: %v", err)
	} else if appConfig.Engine.EventLogPath != "" {
		log.Printf("📝 Event log: %s", appConfig.Engine.EventLogPath)
	}

	// Seed the scene before the first frame
	sc, err := scene.Load(appConfig.Scene.Path)
	if err != nil {
		log.Fatalf("❌ Failed to load scene: %v", err)
	}
	ids, err := sc.Apply(eng)
	if err != nil {
		log.Fatalf("❌ Failed to apply scene: %v", err)
	}
	if appConfig.Scene.Path != "" {
		log.Printf("🗺️ Scene %s: %d fields", appConfig.Scene.Path, len(ids))
	}

	// Start debug server
	if err := api.StartDebugServer(appConfig.Observability); err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	server := api.NewServer(eng, store, serverCfg, appConfig.Export.Dir)

	// Start LOD engine
	eng.Start()
	log.Printf("✅ LOD Engine started (%d ticks/s)", appConfig.Engine.TickRate)

	// Start API server in goroutine
	go func() {
		addr := fmt.Sprintf(":%d", serverCfg.Port)
		log.Printf("🌐 API server on http://localhost%s", addr)
		log.Printf("📡 Mesh stream: ws://localhost%s/ws", addr)

		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	eng.Stop()
	eng.StopEventLog()
	log.Println("👋 Goodbye!")
}

// lodSettings maps the LOD config section onto manager settings.
func lodSettings(cfg config.LODConfig) chunk.Settings {
	s := chunk.DefaultSettings()
	s.MinSize = cfg.MinChunkSize
	s.ScalingFactor = cfg.ScalingFactor
	s.CellsPerChunk = cfg.CellsPerChunk
	s.WorldSize = cfg.WorldSize
	s.MeshUpdatesFirstFrame = cfg.MeshUpdatesFirstFrame
	s.MeshUpdatesPerFrame = cfg.MeshUpdatesPerFrame
	s.Adaptive = cfg.Adaptive
	s.Approximate = cfg.Approximate
	if cfg.MaxItemsPerNode > 0 {
		s.Octree.MaxItemsPerNode = cfg.MaxItemsPerNode
	}
	return s
}
