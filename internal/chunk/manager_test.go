package chunk

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"lodmesh/internal/field"
	"lodmesh/internal/geom"
	"lodmesh/internal/spatial"
)

// recorder is a Presenter that checks the show/retract contract.
type recorder struct {
	t        *testing.T
	shown    map[int]int // id -> vertex count
	presents map[int]int
	retracts map[int]int
}

func newRecorder(t *testing.T) *recorder {
	return &recorder{
		t:        t,
		shown:    make(map[int]int),
		presents: make(map[int]int),
		retracts: make(map[int]int),
	}
}

func (r *recorder) PresentMesh(id int, vertices []float32, indices []uint32) {
	if len(vertices) == 0 || len(indices) == 0 {
		r.t.Errorf("Chunk %d presented with an empty mesh", id)
	}
	r.shown[id] = len(vertices) / 3
	r.presents[id]++
}

func (r *recorder) RetractMesh(id int) {
	if _, ok := r.shown[id]; !ok {
		r.t.Errorf("Chunk %d retracted without being shown", id)
	}
	delete(r.shown, id)
	r.retracts[id]++
}

func testSettings() Settings {
	return Settings{
		MinSize:               1,
		ScalingFactor:         0.25,
		CellsPerChunk:         8,
		WorldSize:             4096,
		MeshUpdatesFirstFrame: 64,
		MeshUpdatesPerFrame:   1,
		Adaptive:              true,
		Octree:                spatial.DefaultConfig(),
		InitialChunks:         64,
		InitialFields:         8,
	}
}

func newTestManager(t *testing.T, s Settings, p Presenter) *Manager {
	t.Helper()
	m, err := NewManager(s, p)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

// settle runs frames until no rebuild, show or removal is pending.
func settle(t *testing.T, m *Manager) int {
	t.Helper()
	for frame := 1; frame <= 5000; frame++ {
		m.Update()
		s := m.Stats()
		if !s.InProgress && s.Backlog == 0 && s.Removing == 0 {
			return frame
		}
	}
	t.Fatalf("Manager did not settle: %+v", m.Stats())
	return 0
}

func liveChunks(m *Manager) []*Chunk {
	var out []*Chunk
	m.EachChunk(func(c *Chunk) { out = append(out, c) })
	return out
}

func TestSmallSphereAtOriginMakesOneSmallestChunk(t *testing.T) {
	rec := newRecorder(t)
	m := newTestManager(t, testSettings(), rec)

	m.AddField(field.Sphere{R: 0.25}, geom.Vec3{}, mgl64.QuatIdent())
	settle(t, m)

	chunks := liveChunks(m)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Level != 0 || c.Size != 1 {
		t.Errorf("Expected smallest chunk, got level %d size %g", c.Level, c.Size)
	}
	if !c.Box.ContainsPoint(geom.Vec3{}) {
		t.Errorf("Expected chunk to contain the origin, got %v", c.Box)
	}
	if !c.Presented() || rec.presents[c.ID] != 1 {
		t.Errorf("Expected chunk presented once, got %d", rec.presents[c.ID])
	}
	if s := m.Stats(); s.Visible != 1 || s.Fields != 1 {
		t.Errorf("Expected 1 visible chunk and 1 field, got %+v", s)
	}
}

func TestFarSphereGetsDistanceSizedChunk(t *testing.T) {
	m := newTestManager(t, testSettings(), nil)

	center := geom.Vec3{960.5, -63.5, -63.5}
	m.AddField(field.Sphere{R: 1}, center, mgl64.QuatIdent())
	m.Update()

	chunks := liveChunks(m)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Size != 128 || c.Level != 7 {
		t.Errorf("Expected a 128 chunk at level 7, got size %g level %d", c.Size, c.Level)
	}
	if !c.Box.ContainsPoint(center) {
		t.Errorf("Expected chunk %v to contain %v", c.Box, center)
	}
}

func TestViewerMoveBelowHalfScaleDoesNotRescale(t *testing.T) {
	m := newTestManager(t, testSettings(), nil)
	m.AddField(field.Sphere{R: 0.25}, geom.Vec3{}, mgl64.QuatIdent())
	settle(t, m)

	m.SetViewer(geom.Vec3{0.3, 0, 0})
	m.Update()
	if s := m.Stats(); s.RescaleEvaluations != 0 || s.Rescales != 0 {
		t.Errorf("Expected no rescale work, got %d evaluations, %d rescales", s.RescaleEvaluations, s.Rescales)
	}

	m.SetViewer(geom.Vec3{0.9, 0, 0})
	m.Update()
	if s := m.Stats(); s.RescaleEvaluations == 0 {
		t.Error("Expected the smallest level to be re-evaluated")
	}
}

func TestViewerApproachRescalesChunk(t *testing.T) {
	rec := newRecorder(t)
	m := newTestManager(t, testSettings(), rec)

	m.AddField(field.Box{Half: geom.Vec3{30, 30, 30}}, geom.Vec3{959.5, -64.5, -64.5}, mgl64.QuatIdent())
	settle(t, m)

	chunks := liveChunks(m)
	if len(chunks) != 1 || chunks[0].Level != 7 {
		t.Fatalf("Expected one level 7 chunk, got %d", len(chunks))
	}
	coarse := chunks[0].ID

	// Less than half of 128.
	m.SetViewer(geom.Vec3{40, 0, 0})
	m.Update()
	if s := m.Stats(); s.Rescales != 0 {
		t.Errorf("Expected no rescale for a short move, got %d", s.Rescales)
	}

	m.SetViewer(geom.Vec3{600, 0, 0})
	m.Update()
	if s := m.Stats(); s.Rescales != 1 {
		t.Fatalf("Expected 1 rescale, got %d", s.Rescales)
	}
	settle(t, m)

	if rec.retracts[coarse] != 1 {
		t.Errorf("Expected the coarse chunk retracted once, got %d", rec.retracts[coarse])
	}
	chunks = liveChunks(m)
	if len(chunks) != 8 {
		t.Errorf("Expected 8 finer chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.Level != 6 || !c.Presented() {
			t.Errorf("Chunk %d: expected a presented level 6 chunk, got level %d presented %v", c.ID, c.Level, c.Presented())
		}
	}
}

func TestMeshUpdatesAreThrottled(t *testing.T) {
	s := testSettings()
	s.MeshUpdatesFirstFrame = 2
	s.MeshUpdatesPerFrame = 1
	rec := newRecorder(t)
	m := newTestManager(t, s, rec)

	m.AddField(field.Sphere{R: 3}, geom.Vec3{}, mgl64.QuatIdent())

	for frame, want := range []uint64{2, 3, 4} {
		m.Update()
		st := m.Stats()
		if st.Rebuilds != want {
			t.Errorf("Frame %d: expected %d rebuilds, got %d", frame, want, st.Rebuilds)
		}
		if !st.InProgress || st.Visible != 0 {
			t.Errorf("Frame %d: expected burst in progress with nothing shown, got %+v", frame, st)
		}
	}

	settle(t, m)
	st := m.Stats()
	if st.Visible == 0 || st.Visible != len(rec.shown) {
		t.Errorf("Expected every visible chunk presented, got %d visible, %d shown", st.Visible, len(rec.shown))
	}
	for _, c := range liveChunks(m) {
		if !c.Presented() {
			t.Errorf("Chunk %d left unpresented after settling", c.ID)
		}
	}
}

func TestFieldMoveAndRemove(t *testing.T) {
	rec := newRecorder(t)
	m := newTestManager(t, testSettings(), rec)

	id := m.AddField(field.Sphere{R: 0.25}, geom.Vec3{}, mgl64.QuatIdent())
	settle(t, m)
	first := liveChunks(m)[0].ID

	// A small move stays in the same chunk and re-presents it.
	m.UpdateField(id, geom.Vec3{0.1, 0, 0}, mgl64.QuatIdent())
	settle(t, m)
	if rec.presents[first] != 2 || rec.retracts[first] != 0 {
		t.Errorf("Expected a second present and no retract, got %d/%d", rec.presents[first], rec.retracts[first])
	}

	m.UpdateField(id, geom.Vec3{10, 0, 0}, mgl64.QuatIdent())
	settle(t, m)
	if rec.retracts[first] != 1 {
		t.Errorf("Expected the vacated chunk retracted, got %d", rec.retracts[first])
	}
	chunks := liveChunks(m)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk after the move, got %d", len(chunks))
	}
	if c := chunks[0]; c.Level != 1 || !c.Box.ContainsPoint(geom.Vec3{10, 0, 0}) {
		t.Errorf("Expected a level 1 chunk around the field, got level %d box %v", c.Level, c.Box)
	}

	if !m.RemoveField(id) {
		t.Fatal("Expected RemoveField to succeed")
	}
	settle(t, m)
	if s := m.Stats(); s.Chunks != 0 || s.Visible != 0 || s.Fields != 0 {
		t.Errorf("Expected an empty manager, got %+v", s)
	}
	if len(rec.shown) != 0 {
		t.Errorf("Expected nothing shown, got %v", rec.shown)
	}
	if m.RemoveField(id) || m.UpdateField(id, geom.Vec3{}, mgl64.QuatIdent()) {
		t.Error("Expected stale field id to be rejected")
	}
}

func TestSeamsTrackCoarserNeighbour(t *testing.T) {
	m := newTestManager(t, testSettings(), nil)

	// A rod along x crosses from level 0 chunks into level 1 chunks at x=7.5.
	m.AddField(field.Box{Half: geom.Vec3{6, 0.3, 0.3}}, geom.Vec3{3, 0, 0}, mgl64.QuatIdent())
	settle(t, m)

	var fine, coarse *Chunk
	for _, c := range liveChunks(m) {
		switch c.Box.Min {
		case geom.Vec3{6.5, -0.5, -0.5}:
			fine = c
		case geom.Vec3{7.5, -0.5, -0.5}:
			coarse = c
		}
	}
	if fine == nil || coarse == nil {
		t.Fatal("Expected chunks on both sides of the level boundary")
	}
	if fine.Level != 0 || coarse.Level != 1 {
		t.Fatalf("Expected levels 0 and 1, got %d and %d", fine.Level, coarse.Level)
	}
	if got := fine.Seams()[SeamPosX]; got != 1 {
		t.Errorf("Expected +x seam level 1, got %d", got)
	}
	if got := coarse.Seams()[SeamNegX]; got != 0 {
		t.Errorf("Expected no seam towards a finer neighbour, got %d", got)
	}
}

func TestGeometryCarriesEverySeam(t *testing.T) {
	m := newTestManager(t, testSettings(), nil)
	c := newChunk(m.settings.CellsPerChunk)
	c.place(geom.Cube(geom.Vec3{}, 4), m.settings.CellsPerChunk)
	c.seams = [6]int{1, 0, 2, 0, 1, 0}

	g := m.geometry(c)
	if g.Seams != c.seams {
		t.Errorf("Expected seams %v, got %v", c.seams, g.Seams)
	}
	if g.Seams[SeamNegY] != 1 {
		t.Errorf("Expected -y seam level 1, got %d", g.Seams[SeamNegY])
	}
}

func TestFieldsListing(t *testing.T) {
	m := newTestManager(t, testSettings(), nil)
	a := m.AddField(field.Sphere{R: 1}, geom.Vec3{1, 2, 3}, mgl64.QuatIdent())
	b := m.AddField(field.Torus{Major: 2, Minor: 0.5}, geom.Vec3{}, mgl64.QuatIdent())

	infos := m.Fields()
	if len(infos) != 2 {
		t.Fatalf("Expected 2 fields, got %d", len(infos))
	}
	if infos[0].ID != a || infos[0].Shape != "sphere" || infos[0].Position != [3]float64{1, 2, 3} {
		t.Errorf("Unexpected first field: %+v", infos[0])
	}
	if infos[1].ID != b || infos[1].Shape != "torus" || infos[1].Radius != 2.5 {
		t.Errorf("Unexpected second field: %+v", infos[1])
	}
}

func TestNewManagerRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero min size", func(s *Settings) { s.MinSize = 0 }},
		{"negative scaling", func(s *Settings) { s.ScalingFactor = -1 }},
		{"one cell", func(s *Settings) { s.CellsPerChunk = 1 }},
		{"tiny world", func(s *Settings) { s.WorldSize = 0.5 }},
		{"no budget", func(s *Settings) { s.MeshUpdatesPerFrame = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings()
			tt.mutate(&s)
			if _, err := NewManager(s, nil); !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("Expected ErrInvalidSettings, got %v", err)
			}
		})
	}
}

func BenchmarkManagerViewerSweep(b *testing.B) {
	s := testSettings()
	s.InitialChunks = 4096
	m, err := NewManager(s, nil)
	if err != nil {
		b.Fatal(err)
	}
	m.AddField(field.Torus{Major: 12, Minor: 3}, geom.Vec3{}, mgl64.QuatIdent())
	for i := 0; i < 200; i++ {
		m.Update()
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.SetViewer(geom.Vec3{float64(i%64) - 32, 0, 0})
		m.Update()
	}
}
