package chunk

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"lodmesh/internal/field"
	"lodmesh/internal/geom"
	"lodmesh/internal/pool"
	"lodmesh/internal/sparse"
	"lodmesh/internal/spatial"
	"lodmesh/internal/statemachine"
	"lodmesh/internal/surface"
)

// Stats is a point-in-time view of the manager.
type Stats struct {
	Chunks             int           `json:"chunks"`
	Visible            int           `json:"visible"`
	Removing           int           `json:"removing"`
	Backlog            int           `json:"backlog"`
	InProgress         bool          `json:"inProgress"`
	Rebuilds           uint64        `json:"rebuilds"`
	Rescales           uint64        `json:"rescales"`
	RescaleEvaluations uint64        `json:"rescaleEvaluations"`
	Fields             int           `json:"fields"`
	IndexNodes         int           `json:"indexNodes"`
	LastExtract        surface.Stats `json:"lastExtract"`
}

// Manager owns the chunks, the fields and the pipeline that keeps their
// meshes current: rescale, then updateMesh, then showMesh, then remove.
//
// A Manager is not safe for concurrent use.
type Manager struct {
	settings  Settings
	presenter Presenter
	root      geom.Box
	levels    int
	maxSeam   int

	chunks     *pool.Pool[Chunk]
	chunkIndex *spatial.Octree
	fields     *pool.Pool[field.Field]
	fieldIndex *spatial.Octree

	sm        *statemachine.Machine
	stRescale statemachine.State
	stUpdate  statemachine.State
	stShow    statemachine.State
	stRemove  statemachine.State
	hUpdate   *statemachine.Handler
	hRemove   *statemachine.Handler

	extractor *surface.Extractor

	viewer     geom.Vec3
	nextViewer geom.Vec3
	lastViewer []geom.Vec3 // per level, where it was last re-evaluated

	addedFields  sparse.Set
	dirtyFields  sparse.Set
	staleRegions []geom.Box
	refill       []geom.Box

	inProgress bool
	visible    int
	counters   Stats

	// scratch
	hits       sparse.Set
	creation   sparse.Set
	neighbours sparse.Set
	fieldHits  sparse.Set
	nearby     []int
	adjacent   []int
	fieldIDs   []int
	sampled    []*field.Field
	sample     surface.Sampler
	regions    []geom.Box
}

// NewManager creates a manager that hands finished meshes to presenter. A
// nil presenter discards them.
func NewManager(s Settings, presenter Presenter) (*Manager, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	if presenter == nil {
		presenter = discard{}
	}
	m := &Manager{settings: s, presenter: presenter}

	// The root is MinSize * 2^n, shifted by half a min chunk so that the
	// origin sits at the centre of a smallest chunk.
	size := s.MinSize
	m.levels = 1
	for size < s.WorldSize {
		size *= 2
		m.levels++
	}
	half := size/2 + s.MinSize/2
	m.root = geom.Cube(geom.Vec3{-half, -half, -half}, size)
	m.lastViewer = make([]geom.Vec3, m.levels)

	for cells := s.CellsPerChunk; cells%2 == 0; cells /= 2 {
		m.maxSeam++
	}

	cells := s.CellsPerChunk
	m.chunks = pool.New("chunks", s.InitialChunks,
		func(id int) *Chunk {
			c := newChunk(cells)
			c.ID = id
			return c
		},
		func(c *Chunk) { c.reset() })
	m.chunkIndex = spatial.NewOctree(m.root, func(id int) geom.Bound {
		return m.chunk(id).bound
	}, s.Octree)

	m.fields = pool.New("fields", s.InitialFields,
		func(id int) *field.Field { return &field.Field{ID: id} },
		func(f *field.Field) { f.Reset() })
	m.fieldIndex = spatial.NewOctree(m.root, func(id int) geom.Bound {
		f, _ := m.fields.Get(id)
		return f.CurrentBounds()
	}, s.Octree)

	m.extractor = surface.NewExtractor()
	m.sample = func(p geom.Vec3) float64 { return field.Distance(m.sampled, p) }

	if err := m.registerPipeline(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) registerPipeline() error {
	m.sm = statemachine.New(func(id int) { m.chunks.Release(id) })

	var err error
	states := []struct {
		dst  *statemachine.State
		name string
	}{
		{&m.stRescale, "rescale"},
		{&m.stUpdate, "updateMesh"},
		{&m.stShow, "showMesh"},
		{&m.stRemove, "remove"},
	}
	for _, st := range states {
		if *st.dst, err = m.sm.RegisterState(st.name); err != nil {
			return err
		}
	}

	hRescale, err := m.sm.RegisterHandler(m.stRescale)
	if err != nil {
		return err
	}
	hRescale.OnEntry(m.rescaleChunks)

	if m.hUpdate, err = m.sm.RegisterHandler(m.stUpdate); err != nil {
		return err
	}
	m.hUpdate.OnTick(m.updateMeshes)

	hShow, err := m.sm.RegisterHandler(m.stShow)
	if err != nil {
		return err
	}
	hShow.OnTick(m.showMeshes)

	if m.hRemove, err = m.sm.RegisterHandler(m.stRemove); err != nil {
		return err
	}
	m.hRemove.OnTick(m.removeChunks)
	return nil
}

func (m *Manager) chunk(id int) *Chunk {
	c, _ := m.chunks.Get(id)
	return c
}

// levelSize returns the chunk edge at level, level 0 being MinSize.
func (m *Manager) levelSize(level int) float64 {
	return m.settings.MinSize * math.Exp2(float64(level))
}

// Settings returns the manager's settings.
func (m *Manager) Settings() Settings { return m.settings }

// World returns the root box.
func (m *Manager) World() geom.Box { return m.root }

// Levels returns the number of chunk sizes between MinSize and the root.
func (m *Manager) Levels() int { return m.levels }

// Viewer returns the viewer position committed by the last Update.
func (m *Manager) Viewer() geom.Vec3 { return m.viewer }

// SetViewer stages the viewer position for the next Update.
func (m *Manager) SetViewer(p geom.Vec3) { m.nextViewer = p }

// ============================================================================
// Fields
// ============================================================================

// AddField places a new field. Chunks for it are created on the next Update.
func (m *Manager) AddField(shape field.Shape, position geom.Vec3, rotation mgl64.Quat) int {
	id, f := m.fields.Acquire()
	f.Init(shape, position, rotation)
	m.addedFields.Add(id)
	return id
}

// UpdateField moves a field. The old and new regions are invalidated on the
// next Update. It returns false for an unknown id.
func (m *Manager) UpdateField(id int, position geom.Vec3, rotation mgl64.Quat) bool {
	f, ok := m.fields.Get(id)
	if !ok {
		return false
	}
	f.Move(position, rotation)
	if m.addedFields.Has(id) {
		// Not indexed yet; the pending addition covers the new pose.
		f.CommitUpdate()
		return true
	}
	m.dirtyFields.Add(id)
	return true
}

// RemoveField drops a field. Chunks it touched are remeshed on the next
// Update. It returns false for an unknown id.
func (m *Manager) RemoveField(id int) bool {
	f, ok := m.fields.Get(id)
	if !ok {
		return false
	}
	if !m.addedFields.Remove(id) {
		m.staleRegions = append(m.staleRegions, f.CurrentBounds().Box().Union(f.NewBounds().Box()))
		m.fieldIndex.Remove(id)
		m.dirtyFields.Remove(id)
	}
	m.fields.Release(id)
	return true
}

// Field returns a live field.
func (m *Manager) Field(id int) (*field.Field, bool) {
	return m.fields.Get(id)
}

// Fields describes every live field in id order.
func (m *Manager) Fields() []field.Info {
	out := make([]field.Info, 0, m.fields.Len())
	m.fields.Each(func(_ int, f *field.Field) {
		out = append(out, f.Info())
	})
	return out
}

// ============================================================================
// Chunks
// ============================================================================

// Chunk returns a live chunk.
func (m *Manager) Chunk(id int) (*Chunk, bool) {
	return m.chunks.Get(id)
}

// EachChunk calls fn for every live chunk in id order.
func (m *Manager) EachChunk(fn func(c *Chunk)) {
	m.chunks.Each(func(_ int, c *Chunk) { fn(c) })
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	s := m.counters
	s.Chunks = m.chunks.Len()
	s.Visible = m.visible
	s.Removing = m.hRemove.Len()
	s.Backlog = m.hUpdate.Len()
	s.InProgress = m.inProgress
	s.Fields = m.fields.Len()
	s.IndexNodes = m.chunkIndex.Stats().Nodes
	return s
}

// Update runs one frame: the rescale check, the field changes, then the
// state machine.
func (m *Manager) Update() {
	m.checkViewerMovedEnoughToRescale()
	m.processFieldChanges()
	m.sm.Tick()
}

// checkViewerMovedEnoughToRescale commits the staged viewer and re-evaluates
// the chunks of every level the viewer has moved more than half a chunk
// edge away from since that level was last evaluated.
func (m *Manager) checkViewerMovedEnoughToRescale() {
	m.viewer = m.nextViewer

	for level := 0; level < m.levels; level++ {
		scale := m.levelSize(level)
		last := m.lastViewer[level]
		if last.Sub(m.viewer).Len() <= scale/2 {
			continue
		}
		m.lastViewer[level] = m.viewer

		radius := 2*scale/m.settings.ScalingFactor + scale
		m.hits.Clear()
		m.chunkIndex.QuerySphere(last, radius, &m.hits)
		m.chunkIndex.QuerySphere(m.viewer, radius, &m.hits)

		for _, id := range m.hits.IDs() {
			c := m.chunk(id)
			if c.removing || c.Level != level || m.sm.Has(id, m.stRescale) {
				continue
			}
			m.counters.RescaleEvaluations++
			if m.rescaleLevel(c.Box.Center()) != c.Level {
				m.sm.AddState(id, m.stRescale)
				m.counters.Rescales++
			}
		}
	}
}

// rescaleLevel returns the level whose size is the power-of-two floor of
// the target size at p.
func (m *Manager) rescaleLevel(p geom.Vec3) int {
	target := math.Max(p.Sub(m.viewer).Len()*m.settings.ScalingFactor, m.settings.MinSize)
	level := int(math.Floor(math.Log2(target / m.settings.MinSize)))
	return max(0, min(level, m.levels-1))
}

// processFieldChanges invalidates the regions of removed and moved fields
// and creates chunks for moved and added ones.
func (m *Manager) processFieldChanges() {
	for _, region := range m.staleRegions {
		m.invalidate(region)
	}
	m.staleRegions = m.staleRegions[:0]

	m.regions = m.regions[:0]
	for _, id := range m.dirtyFields.IDs() {
		f, _ := m.fields.Get(id)
		region := f.CurrentBounds().Box().Union(f.NewBounds().Box())
		m.fieldIndex.Update(id, f.NewBounds())
		f.CommitUpdate()
		m.invalidate(region)
		m.regions = append(m.regions, f.CurrentBounds().Box())
	}
	m.dirtyFields.Clear()

	for _, id := range m.addedFields.IDs() {
		f, _ := m.fields.Get(id)
		m.fieldIndex.Insert(id)
		m.regions = append(m.regions, f.CurrentBounds().Box())
	}
	m.addedFields.Clear()

	for _, region := range m.regions {
		m.createRegion(region)
	}
}

// invalidate queues every chunk whose lattice reaches into region.
func (m *Manager) invalidate(region geom.Box) {
	m.hits.Clear()
	m.chunkIndex.QueryBox(region, &m.hits)
	for _, id := range m.hits.IDs() {
		if !m.chunk(id).removing {
			m.sm.AddState(id, m.stUpdate)
		}
	}
}

// createRegion creates chunks for every field overlapping region, then for
// the regions of larger chunks the new ones displaced.
func (m *Manager) createRegion(region geom.Box) {
	m.refill = append(m.refill, region)
	for len(m.refill) > 0 {
		r := m.refill[len(m.refill)-1]
		m.refill = m.refill[:len(m.refill)-1]

		m.fieldHits.Clear()
		m.fieldIndex.QueryBox(r, &m.fieldHits)
		m.fieldIDs = m.fieldHits.AppendTo(m.fieldIDs[:0])
		for _, fid := range m.fieldIDs {
			f, _ := m.fields.Get(fid)
			m.createChunksForBounds(m.root, m.levels-1, f.CurrentBounds(), r)
		}
	}
}

// createChunksForBounds bisects box until it reaches the size its distance
// to the viewer calls for, creating a chunk at every leaf that overlaps
// both target and region.
func (m *Manager) createChunksForBounds(box geom.Box, level int, target geom.Bound, region geom.Box) {
	if !target.OverlapsBox(box) || !box.Intersects(region) {
		return
	}
	if level > 0 {
		targetSize := math.Max(box.Center().Sub(m.viewer).Len()*m.settings.ScalingFactor, m.settings.MinSize)
		if box.ContainsPoint(m.viewer) || m.levelSize(level) > targetSize {
			for o := 0; o < 8; o++ {
				m.createChunksForBounds(box.Octant(o), level-1, target, region)
			}
			return
		}
	}
	m.createChunk(box, level)
}

// createChunk adds a chunk for box unless an identical one exists. Chunks
// it overlaps are retired; larger ones have their remaining volume refilled.
func (m *Manager) createChunk(box geom.Box, level int) {
	m.creation.Clear()
	m.chunkIndex.QueryBox(box, &m.creation)
	m.nearby = m.creation.AppendTo(m.nearby[:0])

	for _, id := range m.nearby {
		c := m.chunk(id)
		if !c.removing && c.Level == level && c.Box == box {
			return
		}
	}
	for _, id := range m.nearby {
		c := m.chunk(id)
		if c.removing || !c.Box.Intersects(box) {
			continue
		}
		if !box.ContainsBox(c.Box) {
			m.refill = append(m.refill, c.Box)
		}
		m.markForRemoval(id)
	}

	id, c := m.chunks.Acquire()
	c.Level = level
	c.place(box, m.settings.CellsPerChunk)
	m.chunkIndex.Insert(id)
	m.sm.AddState(id, m.stUpdate)
}

func (m *Manager) markForRemoval(id int) {
	m.chunk(id).removing = true
	m.sm.RemoveState(id, m.stRescale)
	m.sm.RemoveState(id, m.stUpdate)
	m.sm.RemoveState(id, m.stShow)
	m.sm.AddState(id, m.stRemove)
}

// ============================================================================
// Pipeline handlers
// ============================================================================

// rescaleChunks retires chunks whose level no longer matches the viewer
// distance and recreates their surroundings at the current targets.
func (m *Manager) rescaleChunks(ids []int) {
	for _, id := range ids {
		c := m.chunk(id)
		m.sm.RemoveState(id, m.stRescale)
		if c.removing {
			continue
		}
		m.markForRemoval(id)
		m.createRegion(c.Box.Expand(m.settings.MinSize))
	}
}

// updateMeshes rebuilds queued chunks within the frame budget. The first
// frame of a burst gets the larger budget; the burst ends on the first tick
// that starts with an empty queue.
func (m *Manager) updateMeshes(ids []int) {
	if len(ids) == 0 {
		m.inProgress = false
		return
	}
	budget := m.settings.MeshUpdatesPerFrame
	if !m.inProgress {
		budget = m.settings.MeshUpdatesFirstFrame
		m.inProgress = true
	}
	for _, id := range ids {
		if budget == 0 {
			return
		}
		budget--
		m.rebuild(id)
	}
}

func (m *Manager) rebuild(id int) {
	c := m.chunk(id)
	m.sm.RemoveState(id, m.stUpdate)
	m.updateSeams(id, c)

	m.sampled = m.sampled[:0]
	m.fieldHits.Clear()
	m.fieldIndex.QueryBox(c.bound.Box(), &m.fieldHits)
	for _, fid := range m.fieldHits.IDs() {
		f, _ := m.fields.Get(fid)
		m.sampled = append(m.sampled, f)
	}

	ok := false
	if len(m.sampled) > 0 {
		ok = m.extractor.Extract(c.lattice, m.sample, m.geometry(c), &c.back)
		m.counters.LastExtract = m.extractor.Stats()
	} else {
		c.back.Reset()
	}
	m.counters.Rebuilds++

	if ok {
		m.sm.AddState(id, m.stShow)
	} else {
		m.markForRemoval(id)
	}
}

func (m *Manager) geometry(c *Chunk) surface.Geometry {
	return surface.Geometry{
		Origin:      c.Box.Min,
		Step:        c.Step,
		ClipMax:     [3]bool{true, true, true},
		Seams:       c.seams,
		Adaptive:    m.settings.Adaptive,
		Approximate: m.settings.Approximate,
	}
}

// showMeshes swaps freshly built meshes in once the rebuild burst is over.
func (m *Manager) showMeshes(ids []int) {
	if m.inProgress {
		return
	}
	for _, id := range ids {
		c := m.chunk(id)
		c.front, c.back = c.back, c.front
		m.presenter.PresentMesh(id, c.front.Vertices, c.front.Indices)
		if !c.presented {
			c.presented = true
			m.visible++
		}
		m.sm.RemoveState(id, m.stShow)
	}
}

// removeChunks detaches retired chunks once the rebuild burst is over.
func (m *Manager) removeChunks(ids []int) {
	if m.inProgress {
		return
	}
	for _, id := range ids {
		c := m.chunk(id)
		m.chunkIndex.Remove(id)
		if c.presented {
			m.presenter.RetractMesh(id)
			c.presented = false
			m.visible--
		}
		m.sm.ReleaseItem(id)
	}
}
