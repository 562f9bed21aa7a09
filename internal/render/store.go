// Package render holds the collaborators that consume presented chunk
// meshes: an in-memory mesh store, the event stream fed to websocket
// clients, PNG previews and compressed mesh snapshots.
package render

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// EventKind distinguishes mesh stream events.
type EventKind uint8

const (
	EventPresent EventKind = iota + 1
	EventRetract
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventPresent:
		return "mesh_present"
	case EventRetract:
		return "mesh_retract"
	default:
		return "unknown"
	}
}

// Mesh is an immutable copy of one presented chunk mesh.
type Mesh struct {
	ChunkID   int       `json:"chunkId"`
	Sequence  uint64    `json:"sequence"`
	Vertices  []float32 `json:"vertices"`
	Indices   []uint32  `json:"indices"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VertexCount returns the number of xyz triples.
func (m *Mesh) VertexCount() int { return len(m.Vertices) / 3 }

// TriangleCount returns the number of index triples.
func (m *Mesh) TriangleCount() int { return len(m.Indices) / 3 }

// Event is one entry of the mesh stream. Mesh is nil for retractions.
type Event struct {
	Kind     EventKind
	ChunkID  int
	Sequence uint64
	Mesh     *Mesh
}

// StoreStats summarises the store contents.
type StoreStats struct {
	Meshes        int    `json:"meshes"`
	Vertices      int    `json:"vertices"`
	Triangles     int    `json:"triangles"`
	Presents      uint64 `json:"presents"`
	Retracts      uint64 `json:"retracts"`
	Sequence      uint64 `json:"sequence"`
	DroppedEvents uint64 `json:"droppedEvents"`
}

// MeshStore keeps a copy of every currently presented chunk mesh. The
// manager writes to it from the frame loop while HTTP handlers read.
type MeshStore struct {
	mu     sync.RWMutex
	meshes map[int]*Mesh

	sequence atomic.Uint64
	presents atomic.Uint64
	retracts atomic.Uint64

	events *EventQueue[Event] // nil disables the stream
}

// NewMeshStore creates a store. A non-nil queue receives one event per
// present or retract.
func NewMeshStore(events *EventQueue[Event]) *MeshStore {
	return &MeshStore{
		meshes: make(map[int]*Mesh),
		events: events,
	}
}

// PresentMesh stores a copy of the buffers for chunk id, replacing any
// previous mesh for it.
func (s *MeshStore) PresentMesh(id int, vertices []float32, indices []uint32) {
	m := &Mesh{
		ChunkID:   id,
		Vertices:  append([]float32(nil), vertices...),
		Indices:   append([]uint32(nil), indices...),
		UpdatedAt: time.Now(),
	}

	s.mu.Lock()
	m.Sequence = s.sequence.Add(1)
	s.meshes[id] = m
	s.mu.Unlock()
	s.presents.Add(1)

	if s.events != nil {
		s.events.TryPush(Event{Kind: EventPresent, ChunkID: id, Sequence: m.Sequence, Mesh: m})
	}
}

// RetractMesh drops the mesh of chunk id.
func (s *MeshStore) RetractMesh(id int) {
	s.mu.Lock()
	_, ok := s.meshes[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.meshes, id)
	seq := s.sequence.Add(1)
	s.mu.Unlock()

	s.retracts.Add(1)
	if s.events != nil {
		s.events.TryPush(Event{Kind: EventRetract, ChunkID: id, Sequence: seq})
	}
}

// Mesh returns the current mesh for chunk id.
func (s *MeshStore) Mesh(id int) (*Mesh, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meshes[id]
	return m, ok
}

// Meshes returns the current meshes ordered by chunk id. The returned meshes
// are shared and must not be modified.
func (s *MeshStore) Meshes() []*Mesh {
	_, out := s.Snapshot()
	return out
}

// Snapshot returns the current meshes together with the sequence they
// reflect: every event up to that sequence is applied and none after it.
func (s *MeshStore) Snapshot() (uint64, []*Mesh) {
	s.mu.RLock()
	seq := s.sequence.Load()
	out := make([]*Mesh, 0, len(s.meshes))
	for _, m := range s.meshes {
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return seq, out
}

// Events returns the queue the store publishes to, or nil.
func (s *MeshStore) Events() *EventQueue[Event] { return s.events }

// Stats returns store totals.
func (s *MeshStore) Stats() StoreStats {
	s.mu.RLock()
	st := StoreStats{Meshes: len(s.meshes)}
	for _, m := range s.meshes {
		st.Vertices += m.VertexCount()
		st.Triangles += m.TriangleCount()
	}
	s.mu.RUnlock()

	st.Presents = s.presents.Load()
	st.Retracts = s.retracts.Load()
	st.Sequence = s.sequence.Load()
	if s.events != nil {
		st.DroppedEvents = s.events.Dropped()
	}
	return st
}
