// Package chunk subdivides the world into cubic chunks sized by distance to
// the viewer and keeps their meshes in step with the fields that overlap
// them.
package chunk

import (
	"errors"
	"fmt"

	"lodmesh/internal/geom"
	"lodmesh/internal/spatial"
	"lodmesh/internal/surface"
)

// Presenter receives finished chunk meshes. Slices passed to PresentMesh
// are reused by the manager after the call returns.
type Presenter interface {
	PresentMesh(id int, vertices []float32, indices []uint32)
	RetractMesh(id int)
}

type discard struct{}

func (discard) PresentMesh(int, []float32, []uint32) {}
func (discard) RetractMesh(int)                      {}

// Seam directions, indexing Chunk seam levels.
const (
	SeamPosX = iota
	SeamPosY
	SeamPosZ
	SeamNegX
	SeamNegY
	SeamNegZ
)

// Chunk is a cubic region with its own lattice and a double-buffered mesh.
// The pool id doubles as its identity in the index and the state machine.
type Chunk struct {
	ID    int
	Level int // 0 is the smallest chunk size
	Box   geom.Box
	Size  float64
	Step  float64

	bound   geom.Bound // Box plus the overlap layer beyond each max face
	lattice *surface.Lattice
	seams   [6]int // levels coarser, per direction

	front surface.Mesh // presented
	back  surface.Mesh // last build

	presented bool
	removing  bool
}

func newChunk(cells int) *Chunk {
	return &Chunk{lattice: surface.NewLattice(cells + 1)}
}

func (c *Chunk) reset() {
	c.seams = [6]int{}
	c.front.Reset()
	c.back.Reset()
	c.presented = false
	c.removing = false
}

func (c *Chunk) place(box geom.Box, cells int) {
	c.Box = box
	c.Size = box.Size()
	c.Step = c.Size / float64(cells)
	c.bound = geom.FromBox(geom.Box{
		Min: box.Min,
		Max: box.Max.Add(geom.Vec3{c.Step, c.Step, c.Step}),
	})
}

// Seams returns the seam level per direction, in SeamPosX..SeamNegZ order.
func (c *Chunk) Seams() [6]int { return c.seams }

// Presented reports whether the chunk's mesh is currently shown.
func (c *Chunk) Presented() bool { return c.presented }

// Removing reports whether the chunk is queued for removal.
func (c *Chunk) Removing() bool { return c.removing }

// Mesh returns the presented mesh. Valid until the next Update.
func (c *Chunk) Mesh() *surface.Mesh { return &c.front }

// Info is a value copy of a chunk's public state.
type Info struct {
	ID        int        `json:"id"`
	Level     int        `json:"level"`
	Min       [3]float64 `json:"min"`
	Max       [3]float64 `json:"max"`
	Size      float64    `json:"size"`
	Seams     [6]int     `json:"seams"`
	Presented bool       `json:"presented"`
	Removing  bool       `json:"removing"`
	Vertices  int        `json:"vertices"`
	Triangles int        `json:"triangles"`
}

// Info returns a copy of the chunk's public state.
func (c *Chunk) Info() Info {
	return Info{
		ID:        c.ID,
		Level:     c.Level,
		Min:       [3]float64(c.Box.Min),
		Max:       [3]float64(c.Box.Max),
		Size:      c.Size,
		Seams:     c.seams,
		Presented: c.presented,
		Removing:  c.removing,
		Vertices:  c.front.VertexCount(),
		Triangles: c.front.TriangleCount(),
	}
}

// ============================================================================
// Settings
// ============================================================================

var ErrInvalidSettings = errors.New("chunk: invalid settings")

// Settings configures a Manager.
type Settings struct {
	MinSize       float64 // Smallest chunk edge
	ScalingFactor float64 // Target chunk edge per unit of viewer distance
	CellsPerChunk int     // Lattice cells per chunk axis
	WorldSize     float64 // Root cube edge, rounded up to MinSize * 2^n

	MeshUpdatesFirstFrame int // Rebuild budget on the first frame of a burst
	MeshUpdatesPerFrame   int // Rebuild budget on later frames

	Adaptive    bool // Skip lattice blocks far from the surface
	Approximate bool // Propagate estimated distances into skipped blocks

	Octree        spatial.Config
	InitialChunks int
	InitialFields int
}

// DefaultSettings returns the default LOD tuning.
func DefaultSettings() Settings {
	return Settings{
		MinSize:               1,
		ScalingFactor:         0.25,
		CellsPerChunk:         16,
		WorldSize:             65536,
		MeshUpdatesFirstFrame: 64,
		MeshUpdatesPerFrame:   1,
		Adaptive:              true,
		Approximate:           false,
		Octree:                spatial.DefaultConfig(),
		InitialChunks:         1024,
		InitialFields:         64,
	}
}

// Validate checks the settings a Manager cannot run without.
func (s Settings) Validate() error {
	switch {
	case s.MinSize <= 0:
		return fmt.Errorf("%w: min size %g", ErrInvalidSettings, s.MinSize)
	case s.ScalingFactor <= 0:
		return fmt.Errorf("%w: scaling factor %g", ErrInvalidSettings, s.ScalingFactor)
	case s.CellsPerChunk < 2:
		return fmt.Errorf("%w: %d cells per chunk", ErrInvalidSettings, s.CellsPerChunk)
	case s.WorldSize < s.MinSize:
		return fmt.Errorf("%w: world size %g below min size %g", ErrInvalidSettings, s.WorldSize, s.MinSize)
	case s.MeshUpdatesFirstFrame < 1 || s.MeshUpdatesPerFrame < 1:
		return fmt.Errorf("%w: mesh update budget %d/%d", ErrInvalidSettings,
			s.MeshUpdatesFirstFrame, s.MeshUpdatesPerFrame)
	}
	return nil
}
