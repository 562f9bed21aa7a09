// Package surface extracts triangle meshes from signed distance samples
// with a surface-nets variant: one vertex per active lattice cell, one quad
// per sign-changing lattice edge.
package surface

import "math"

// Lattice holds the memoized samples and per-cell scratch for one chunk.
//
// Samples and cell data are valid only when their stamp equals the current
// generation, so starting a new extraction costs a counter bump instead of a
// full clear. Arrays are cleared only when the counter wraps.
type Lattice struct {
	cells int // cells per axis
	dim   int // samples per axis

	values []float32
	stamps []uint32

	cellMasks  []uint8
	maskStamps []uint32
	cellVerts  []uint32
	vertStamps []uint32

	gen uint32
}

// NewLattice allocates a lattice with cells cells per axis.
func NewLattice(cells int) *Lattice {
	if cells < 1 {
		cells = 1
	}
	dim := cells + 1
	nSamples := dim * dim * dim
	nCells := cells * cells * cells
	return &Lattice{
		cells:      cells,
		dim:        dim,
		values:     make([]float32, nSamples),
		stamps:     make([]uint32, nSamples),
		cellMasks:  make([]uint8, nCells),
		maskStamps: make([]uint32, nCells),
		cellVerts:  make([]uint32, nCells),
		vertStamps: make([]uint32, nCells),
	}
}

// Cells returns the number of cells per axis.
func (l *Lattice) Cells() int { return l.cells }

// Generation returns the current generation counter.
func (l *Lattice) Generation() uint32 { return l.gen }

// Begin invalidates every memoized sample and cell.
func (l *Lattice) Begin() {
	if l.gen == math.MaxUint32 {
		clear(l.stamps)
		clear(l.maskStamps)
		clear(l.vertStamps)
		l.gen = 0
	}
	l.gen++
}

func (l *Lattice) sampleIndex(i, j, k int) int {
	return (k*l.dim+j)*l.dim + i
}

func (l *Lattice) cellIndex(i, j, k int) int {
	return (k*l.cells+j)*l.cells + i
}
