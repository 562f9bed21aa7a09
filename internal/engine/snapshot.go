package engine

import (
	"time"

	"lodmesh/internal/chunk"
)

// Snapshot is an immutable view of the engine after a frame. Readers get it
// without taking the engine lock.
type Snapshot struct {
	Sequence     uint64        `json:"sequence"`
	Tick         uint64        `json:"tick"`
	Timestamp    time.Time     `json:"timestamp"`
	Viewer       [3]float64    `json:"viewer"`
	Stats        chunk.Stats   `json:"stats"`
	TickDuration time.Duration `json:"tickDurationNs"`
}

// GetSnapshot returns the latest published snapshot. Never nil.
func (e *Engine) GetSnapshot() *Snapshot {
	return e.snapshot.Load()
}

// produceSnapshot publishes the current state. Caller holds e.mu.
func (e *Engine) produceSnapshot(took time.Duration) {
	prev := e.snapshot.Load()
	e.snapshot.Store(&Snapshot{
		Sequence:     prev.Sequence + 1,
		Tick:         e.tickCount,
		Timestamp:    time.Now(),
		Viewer:       [3]float64(e.manager.Viewer()),
		Stats:        e.manager.Stats(),
		TickDuration: took,
	})
}
