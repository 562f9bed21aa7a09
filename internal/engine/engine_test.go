package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"lodmesh/internal/chunk"
	"lodmesh/internal/config"
	"lodmesh/internal/field"
	"lodmesh/internal/geom"
)

func newTestEngine(t testing.TB) *Engine {
	t.Helper()
	s := chunk.DefaultSettings()
	s.CellsPerChunk = 8
	s.WorldSize = 4096
	m, err := chunk.NewManager(s, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := config.DefaultEngine()
	cfg.TickRate = 200
	return NewEngine(cfg, m)
}

type tickRecorder struct {
	mu    sync.Mutex
	ticks int
	last  chunk.Stats
}

func (r *tickRecorder) ObserveTick(_ time.Duration, s chunk.Stats) {
	r.mu.Lock()
	r.ticks++
	r.last = s
	r.mu.Unlock()
}

func TestStepPublishesSnapshot(t *testing.T) {
	e := newTestEngine(t)
	rec := &tickRecorder{}
	e.SetMetrics(rec)

	if snap := e.GetSnapshot(); snap == nil || snap.Tick != 0 {
		t.Fatalf("Expected initial snapshot at tick 0, got %+v", snap)
	}

	id := e.AddField(field.Sphere{R: 0.25}, geom.Vec3{}, mgl64.QuatIdent())
	e.Step()

	snap := e.GetSnapshot()
	if snap.Tick != 1 || snap.Sequence != 1 {
		t.Errorf("Expected tick 1 sequence 1, got %d/%d", snap.Tick, snap.Sequence)
	}
	if snap.Stats.Fields != 1 || snap.Stats.Chunks != 1 {
		t.Errorf("Expected 1 field and 1 chunk, got %+v", snap.Stats)
	}
	if rec.ticks != 1 || rec.last.Chunks != 1 {
		t.Errorf("Expected metrics for 1 tick, got %d (%+v)", rec.ticks, rec.last)
	}

	info, ok := e.Field(id)
	if !ok || info.Shape != "sphere" {
		t.Errorf("Expected sphere field %d, got %+v", id, info)
	}
}

func TestFieldLifecycle(t *testing.T) {
	e := newTestEngine(t)

	id := e.AddField(field.Sphere{R: 0.25}, geom.Vec3{}, mgl64.QuatIdent())
	for i := 0; i < 10; i++ {
		e.Step()
	}
	chunks := e.Chunks()
	if len(chunks) != 1 || !chunks[0].Presented || chunks[0].Level != 0 {
		t.Fatalf("Expected one presented level-0 chunk, got %+v", chunks)
	}
	if c, ok := e.Chunk(chunks[0].ID); !ok || c.Triangles == 0 {
		t.Errorf("Expected chunk lookup with triangles, got %+v", c)
	}

	if !e.UpdateField(id, geom.Vec3{0.1, 0, 0}, mgl64.QuatIdent()) {
		t.Error("Expected update of live field to succeed")
	}
	if !e.RemoveField(id) {
		t.Error("Expected remove of live field to succeed")
	}
	if e.RemoveField(id) || e.UpdateField(id, geom.Vec3{}, mgl64.QuatIdent()) {
		t.Error("Expected stale id to be rejected")
	}
	for i := 0; i < 10; i++ {
		e.Step()
	}
	if st := e.Stats(); st.Chunks != 0 || st.Fields != 0 {
		t.Errorf("Expected empty manager, got %+v", st)
	}
	if len(e.Fields()) != 0 {
		t.Errorf("Expected no fields, got %v", e.Fields())
	}
}

func TestSetViewerStagesUntilStep(t *testing.T) {
	e := newTestEngine(t)
	e.SetViewer(geom.Vec3{5, 0, 0})

	if v := e.GetSnapshot().Viewer; v != [3]float64{} {
		t.Errorf("Expected viewer unchanged before step, got %v", v)
	}
	e.Step()
	if v := e.GetSnapshot().Viewer; v != [3]float64{5, 0, 0} {
		t.Errorf("Expected viewer (5,0,0), got %v", v)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	e := newTestEngine(t)

	e.Start()
	e.Start()
	if !e.Running() {
		t.Fatal("Expected engine running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.Tick() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if e.Tick() < 3 {
		t.Errorf("Expected at least 3 ticks, got %d", e.Tick())
	}

	e.Stop()
	e.Stop()
	if e.Running() {
		t.Error("Expected engine stopped")
	}
	after := e.Tick()
	time.Sleep(20 * time.Millisecond)
	if e.Tick() != after {
		t.Errorf("Expected no ticks after stop, got %d then %d", after, e.Tick())
	}
}

func TestEventLogWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	e := newTestEngine(t)
	if err := e.StartEventLog(path); err != nil {
		t.Fatalf("StartEventLog: %v", err)
	}

	id := e.AddField(field.Sphere{R: 0.25}, geom.Vec3{}, mgl64.QuatIdent())
	e.SetViewer(geom.Vec3{1, 0, 0})
	e.Step()
	e.RemoveField(id)
	e.StopEventLog()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var types []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev struct {
			Type     string `json:"type"`
			Sequence uint64 `json:"sequence"`
		}
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("Expected JSON line, got %q: %v", sc.Text(), err)
		}
		types = append(types, ev.Type)
	}

	want := []string{"field_add", "viewer", "tick", "field_remove"}
	if len(types) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}

func TestEventLogRateLimit(t *testing.T) {
	el := NewEventLog(1, 3)
	if el.EmitSimple(EventTypeTick, 0, nil) {
		t.Error("Expected emit before Start to fail")
	}
	if err := el.Start(""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer el.Stop()

	accepted := 0
	for i := 0; i < 10; i++ {
		if el.EmitSimple(EventTypeTick, uint64(i), TickPayload{}) {
			accepted++
		}
	}
	if accepted != 3 {
		t.Errorf("Expected burst of 3 accepted, got %d", accepted)
	}
	if st := el.Stats(); st.Dropped != 7 || st.Total != 3 {
		t.Errorf("Expected 7 dropped and 3 total, got %+v", st)
	}
}

func TestEventTypeNames(t *testing.T) {
	tests := []struct {
		t    EventType
		want string
	}{
		{EventTypeTick, "tick"},
		{EventTypeFieldAdd, "field_add"},
		{EventTypeFieldUpdate, "field_update"},
		{EventTypeFieldRemove, "field_remove"},
		{EventTypeViewer, "viewer"},
		{EventType(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}

func BenchmarkEngineStep(b *testing.B) {
	e := newTestEngine(b)
	e.AddField(field.Sphere{R: 3}, geom.Vec3{}, mgl64.QuatIdent())
	for i := 0; i < 200; i++ {
		e.Step()
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.SetViewer(geom.Vec3{float64(i % 64), 0, 0})
		e.Step()
	}
}
