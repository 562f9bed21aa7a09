// Package engine drives a chunk manager from a fixed-rate frame loop and
// serialises every outside request against it.
package engine

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"lodmesh/internal/chunk"
	"lodmesh/internal/config"
	"lodmesh/internal/field"
	"lodmesh/internal/geom"
)

// Metrics receives per-frame measurements.
type Metrics interface {
	ObserveTick(took time.Duration, stats chunk.Stats)
}

// Engine owns the frame loop around a chunk.Manager. All manager access goes
// through the engine mutex; readers that only need totals use GetSnapshot.
type Engine struct {
	mu      sync.Mutex
	manager *chunk.Manager

	tickRate int
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	done     chan struct{}

	tickCount uint64
	snapshot  atomic.Pointer[Snapshot]
	metrics   Metrics

	eventLog *EventLog
}

// NewEngine wraps a manager. Nothing runs until Start or Step.
func NewEngine(cfg config.EngineConfig, m *chunk.Manager) *Engine {
	tickRate := cfg.TickRate
	if tickRate <= 0 {
		tickRate = config.DefaultEngine().TickRate
	}

	e := &Engine{
		manager:  m,
		tickRate: tickRate,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		eventLog: NewEventLog(cfg.EventLogRate, cfg.EventLogBurst),
	}
	e.snapshot.Store(&Snapshot{
		Timestamp: time.Now(),
		Viewer:    [3]float64(m.Viewer()),
		Stats:     m.Stats(),
	})
	return e
}

// SetMetrics installs a metrics sink. Call before Start.
func (e *Engine) SetMetrics(m Metrics) {
	e.mu.Lock()
	e.metrics = m
	e.mu.Unlock()
}

// Start begins the frame loop. Calling it again is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ticker = time.NewTicker(time.Second / time.Duration(e.tickRate))
	e.mu.Unlock()

	go func() {
		defer close(e.done)
		for {
			select {
			case <-e.ticker.C:
				e.Step()
			case <-e.stopChan:
				return
			}
		}
	}()

	log.Printf("🧊 LOD engine started at %d TPS", e.tickRate)
}

// Stop halts the frame loop and waits for the current frame to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.ticker.Stop()
	close(e.stopChan)
	e.mu.Unlock()

	<-e.done
	log.Println("🛑 LOD engine stopped")
}

// Running reports whether the frame loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Step runs one frame synchronously.
func (e *Engine) Step() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tick()
}

// tick runs one manager update. Caller holds e.mu.
func (e *Engine) tick() {
	start := time.Now()
	e.manager.Update()
	e.tickCount++
	took := time.Since(start)

	e.produceSnapshot(took)
	stats := e.snapshot.Load().Stats

	if stats.InProgress || stats.Backlog > 0 || stats.Removing > 0 {
		e.eventLog.EmitSimple(EventTypeTick, e.tickCount, TickPayload{
			Chunks:     stats.Chunks,
			Visible:    stats.Visible,
			Backlog:    stats.Backlog,
			Removing:   stats.Removing,
			DurationNs: took.Nanoseconds(),
		})
	}
	if e.metrics != nil {
		e.metrics.ObserveTick(took, stats)
	}
}

// Tick returns the number of frames run so far.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickCount
}

// ============================================================================
// Staging API
// ============================================================================

// SetViewer stages a viewer position for the next frame.
func (e *Engine) SetViewer(p geom.Vec3) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.manager.SetViewer(p)
	e.eventLog.EmitSimple(EventTypeViewer, e.tickCount, ViewerPayload{Position: [3]float64(p)})
}

// AddField places a field and returns its id.
func (e *Engine) AddField(shape field.Shape, position geom.Vec3, rotation mgl64.Quat) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.manager.AddField(shape, position, rotation)
	e.emitField(EventTypeFieldAdd, id)
	return id
}

// UpdateField moves a field. It returns false for an unknown id.
func (e *Engine) UpdateField(id int, position geom.Vec3, rotation mgl64.Quat) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.manager.UpdateField(id, position, rotation) {
		return false
	}
	e.emitField(EventTypeFieldUpdate, id)
	return true
}

// RemoveField drops a field. It returns false for an unknown id.
func (e *Engine) RemoveField(id int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.manager.RemoveField(id) {
		return false
	}
	e.eventLog.EmitSimple(EventTypeFieldRemove, e.tickCount, FieldPayload{FieldID: id})
	return true
}

// emitField logs the field's current pose. Caller holds e.mu.
func (e *Engine) emitField(t EventType, id int) {
	f, ok := e.manager.Field(id)
	if !ok {
		return
	}
	info := f.Info()
	e.eventLog.EmitSimple(t, e.tickCount, FieldPayload{
		FieldID:  id,
		Shape:    info.Shape,
		Position: info.Position,
		Rotation: info.Rotation,
	})
}

// Field describes one field.
func (e *Engine) Field(id int) (field.Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, ok := e.manager.Field(id)
	if !ok {
		return field.Info{}, false
	}
	return f.Info(), true
}

// Fields describes every live field.
func (e *Engine) Fields() []field.Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Fields()
}

// Chunks describes every live chunk.
func (e *Engine) Chunks() []chunk.Info {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]chunk.Info, 0, e.manager.Stats().Chunks)
	e.manager.EachChunk(func(c *chunk.Chunk) {
		out = append(out, c.Info())
	})
	return out
}

// Chunk describes one chunk.
func (e *Engine) Chunk(id int) (chunk.Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.manager.Chunk(id)
	if !ok {
		return chunk.Info{}, false
	}
	return c.Info(), true
}

// Stats returns live manager counters.
func (e *Engine) Stats() chunk.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Stats()
}

// Settings returns the manager settings.
func (e *Engine) Settings() chunk.Settings {
	return e.manager.Settings()
}

// ============================================================================
// Event log
// ============================================================================

// StartEventLog starts the JSONL event log.
func (e *Engine) StartEventLog(filePath string) error {
	return e.eventLog.Start(filePath)
}

// StopEventLog flushes and stops the event log.
func (e *Engine) StopEventLog() {
	e.eventLog.Stop()
}

// EventLogStats returns event log counters.
func (e *Engine) EventLogStats() EventLogStats {
	return e.eventLog.Stats()
}
