package surface

import (
	"math"

	"lodmesh/internal/geom"
)

// Sampler returns the signed distance at a world position.
// Negative values are inside. Adaptive extraction assumes the value changes
// by no more than twice the distance moved.
type Sampler func(p geom.Vec3) float64

// Mesh is a caller-owned vertex/index buffer pair. Vertices hold packed
// xyz triples; Indices hold counter-clockwise triangles.
type Mesh struct {
	Vertices []float32
	Indices  []uint32
}

// Reset truncates both buffers, keeping their capacity.
func (m *Mesh) Reset() {
	m.Vertices = m.Vertices[:0]
	m.Indices = m.Indices[:0]
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) / 3 }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Indices) / 3 }

// Geometry places a lattice in the world and selects extraction options.
type Geometry struct {
	Origin geom.Vec3
	Step   float64

	// ClipMax drops the quads perpendicular to an axis in the last cell
	// layer on that axis; the neighbour on the positive side emits them.
	ClipMax [3]bool

	// Seams holds, per direction (+x, +y, +z, -x, -y, -z), how many levels
	// coarser the neighbour is. Face samples are snapped to the neighbour's
	// lattice and the boundary cell layer takes the neighbour's vertices, so
	// both meshes share their boundary edges.
	Seams [6]int

	// Adaptive skips octant blocks whose centre distance rules out a
	// surface crossing.
	Adaptive bool

	// Approximate writes a distance estimate into the samples of skipped
	// blocks instead of leaving them to be sampled on demand.
	Approximate bool
}

// Stats counts the work done by the last extraction.
type Stats struct {
	Samples       int `json:"samples"`
	ActiveCells   int `json:"activeCells"`
	SkippedBlocks int `json:"skippedBlocks"`
	Degenerate    int `json:"degenerate"`
}

// Extractor runs surface extraction. It keeps the counters of its last
// run; the memoized data lives in the Lattice.
type Extractor struct {
	stats Stats
}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Stats returns the counters of the last extraction.
func (x *Extractor) Stats() Stats { return x.stats }

const (
	sqrt3 = 1.7320508075688772

	// leafBlock is the block edge, in cells, below which adaptive
	// extraction stops subdividing.
	leafBlock = 2

	// degenerateFactor scales the step to the minimum triangle edge length.
	degenerateFactor = 1e-4
)

// corner offsets: bit 0 is x, bit 1 is y, bit 2 is z
var cornerOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

var cubeEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7}, // x
	{0, 2}, {1, 3}, {4, 6}, {5, 7}, // y
	{0, 4}, {1, 5}, {2, 6}, {3, 7}, // z
}

// Face flags: two per axis, selected by the sign at the edge start.
// flagInside means the lower sample is inside, so the face points along +axis.
const (
	flagInside  = 1
	flagOutside = 2
)

func faceFlag(axis int, inside bool) uint8 {
	if inside {
		return flagInside << (2 * axis)
	}
	return flagOutside << (2 * axis)
}

// Extract samples fn over the lattice placed by g and writes the surface
// into out, which is truncated first. It reports whether any triangle was
// produced.
func (x *Extractor) Extract(l *Lattice, fn Sampler, g Geometry, out *Mesh) bool {
	l.Begin()
	out.Reset()
	x.stats = Stats{}

	r := run{l: l, fn: fn, g: g, out: out, stats: &x.stats}
	r.minEdgeSq = (g.Step * degenerateFactor) * (g.Step * degenerateFactor)
	for dir, level := range g.Seams {
		if level > 0 {
			r.seamScale[dir] = 1 << level
			r.seamStep[dir] = g.Step * float64(r.seamScale[dir])
		}
	}

	n := l.cells
	if g.Adaptive {
		r.block([3]int{0, 0, 0}, [3]int{n, n, n})
	} else {
		for k := 0; k < n; k++ {
			for j := 0; j < n; j++ {
				for i := 0; i < n; i++ {
					r.classify(i, j, k)
				}
			}
		}
	}
	r.connect()
	return len(out.Indices) > 0
}

// run is the state of a single extraction.
type run struct {
	l         *Lattice
	fn        Sampler
	g         Geometry
	out       *Mesh
	stats     *Stats
	seamStep  [6]float64
	seamScale [6]int
	minEdgeSq float64
}

// position returns the world position of a lattice sample, snapping samples
// on a coarser neighbour's face, or beyond a positive one, onto its lattice.
func (r *run) position(i, j, k int) geom.Vec3 {
	idx := [3]int{i, j, k}
	u := [3]float64{float64(i) * r.g.Step, float64(j) * r.g.Step, float64(k) * r.g.Step}
	face := r.l.cells - 1

	for a := 0; a < 3; a++ {
		if ns := r.seamStep[a]; ns != 0 && idx[a] >= face {
			snapOthers(&u, a, ns)
			if idx[a] > face {
				u[a] = float64(face)*r.g.Step + ns
			}
		}
		if ns := r.seamStep[3+a]; ns != 0 && idx[a] == 0 {
			snapOthers(&u, a, ns)
		}
	}
	return geom.Vec3{r.g.Origin[0] + u[0], r.g.Origin[1] + u[1], r.g.Origin[2] + u[2]}
}

func snapOthers(u *[3]float64, a int, ns float64) {
	for b := 0; b < 3; b++ {
		if b != a {
			u[b] = math.Floor(u[b]/ns) * ns
		}
	}
}

// seamCell reports the seam direction whose boundary layer holds cell c:
// the overlap layer for a coarser positive neighbour, the first layer for a
// coarser negative one.
func (r *run) seamCell(c [3]int) (int, bool) {
	last := r.l.cells - 1
	for a := 0; a < 3; a++ {
		if r.seamScale[a] != 0 && c[a] == last {
			return a, true
		}
		if r.seamScale[3+a] != 0 && c[a] == 0 {
			return 3 + a, true
		}
	}
	return 0, false
}

func (r *run) value(i, j, k int) float32 {
	l := r.l
	s := l.sampleIndex(i, j, k)
	if l.stamps[s] != l.gen {
		l.values[s] = float32(r.fn(r.position(i, j, k)))
		l.stamps[s] = l.gen
		r.stats.Samples++
	}
	return l.values[s]
}

// block walks octant blocks of cells [lo, hi) top-down, skipping blocks
// that cannot contain the surface.
func (r *run) block(lo, hi [3]int) {
	size := 0
	for a := 0; a < 3; a++ {
		if hi[a] <= lo[a] {
			return
		}
		if s := hi[a] - lo[a]; s > size {
			size = s
		}
	}

	if r.skippable(lo, hi, size) {
		return
	}

	if size <= leafBlock {
		for k := lo[2]; k < hi[2]; k++ {
			for j := lo[1]; j < hi[1]; j++ {
				for i := lo[0]; i < hi[0]; i++ {
					r.classify(i, j, k)
				}
			}
		}
		return
	}

	var mid [3]int
	for a := 0; a < 3; a++ {
		mid[a] = lo[a] + (hi[a]-lo[a]+1)/2
	}
	for o := 0; o < 8; o++ {
		var clo, chi [3]int
		for a := 0; a < 3; a++ {
			if o&(1<<a) != 0 {
				clo[a], chi[a] = mid[a], hi[a]
			} else {
				clo[a], chi[a] = lo[a], mid[a]
			}
		}
		r.block(clo, chi)
	}
}

func (r *run) skippable(lo, hi [3]int, size int) bool {
	face := r.l.cells - 1
	for a := 0; a < 3; a++ {
		// Snapped samples near a seam do not follow the block geometry.
		if r.seamStep[a] != 0 && hi[a] >= face {
			return false
		}
		if r.seamStep[3+a] != 0 && lo[a] == 0 {
			return false
		}
	}

	var c geom.Vec3
	for a := 0; a < 3; a++ {
		c[a] = r.g.Origin[a] + float64(lo[a]+hi[a])*0.5*r.g.Step
	}
	d := r.fn(c)
	r.stats.Samples++

	// A full diagonal of margin, twice what an exact distance needs, keeps
	// blocks of fields that overestimate distance by up to 2x.
	margin := float64(size) * r.g.Step * sqrt3
	if math.Abs(d) <= margin {
		return false
	}
	r.stats.SkippedBlocks++

	if r.g.Approximate {
		sign := 1.0
		if d < 0 {
			sign = -1
		}
		l := r.l
		for k := lo[2]; k <= hi[2]; k++ {
			for j := lo[1]; j <= hi[1]; j++ {
				for i := lo[0]; i <= hi[0]; i++ {
					s := l.sampleIndex(i, j, k)
					if l.stamps[s] == l.gen {
						continue
					}
					p := r.position(i, j, k)
					l.values[s] = float32(d - sign*p.Sub(c).Len())
					l.stamps[s] = l.gen
				}
			}
		}
	}
	return true
}

// classify records the face flags of cell (i,j,k) from its three
// minimum-corner edges.
func (r *run) classify(i, j, k int) {
	l := r.l
	ci := l.cellIndex(i, j, k)
	l.maskStamps[ci] = l.gen
	l.cellMasks[ci] = 0

	var inside uint8
	for n, o := range cornerOffsets {
		if r.value(i+o[0], j+o[1], k+o[2]) < 0 {
			inside |= 1 << n
		}
	}
	if inside == 0 || inside == 0xFF {
		return
	}
	r.stats.ActiveCells++

	startInside := inside&1 != 0
	var mask uint8
	for a, corner := range [3]int{1, 2, 4} {
		if (inside&(1<<corner) != 0) != startInside {
			mask |= faceFlag(a, startInside)
		}
	}
	l.cellMasks[ci] = mask
}

// vertex returns the index of cell (i,j,k)'s vertex, creating it on first
// use as the average of the cell's edge crossings.
func (r *run) vertex(i, j, k int) uint32 {
	if dir, ok := r.seamCell([3]int{i, j, k}); ok {
		return r.seamVertex(dir, [3]int{i, j, k})
	}

	l := r.l
	ci := l.cellIndex(i, j, k)
	if l.vertStamps[ci] == l.gen {
		return l.cellVerts[ci]
	}

	var d [8]float32
	var p [8]geom.Vec3
	for n, o := range cornerOffsets {
		d[n] = r.value(i+o[0], j+o[1], k+o[2])
		p[n] = r.position(i+o[0], j+o[1], k+o[2])
	}
	return r.emit(ci, cellVertex(&d, &p))
}

// seamVertex returns the vertex of the coarse neighbour cell covering
// boundary cell c. The neighbour computes the same vertex from the same
// corners, so the two meshes meet edge to edge. It is stored in the first
// lattice cell covered by the coarse cell.
func (r *run) seamVertex(dir int, c [3]int) uint32 {
	a := dir % 3
	scale := r.seamScale[dir]
	ns := r.seamStep[dir]

	var base [3]float64
	canon := c
	for b := 0; b < 3; b++ {
		if b == a {
			continue
		}
		canon[b] = c[b] / scale * scale
		base[b] = float64(canon[b]) * r.g.Step
	}
	if dir < 3 {
		base[a] = float64(c[a]) * r.g.Step
	}

	l := r.l
	ci := l.cellIndex(canon[0], canon[1], canon[2])
	owner, _ := r.seamCell(canon)
	memo := owner == dir
	if memo && l.vertStamps[ci] == l.gen {
		return l.cellVerts[ci]
	}

	var d [8]float32
	var p [8]geom.Vec3
	for n, o := range cornerOffsets {
		var q geom.Vec3
		for b := 0; b < 3; b++ {
			q[b] = r.g.Origin[b] + (base[b] + float64(o[b])*ns)
		}
		p[n] = q
		d[n] = float32(r.fn(q))
		r.stats.Samples++
	}
	v := cellVertex(&d, &p)
	if !memo {
		return r.addVertex(v)
	}
	return r.emit(ci, v)
}

// cellVertex averages the edge crossings of a cell given its corner
// distances and positions.
func cellVertex(d *[8]float32, p *[8]geom.Vec3) geom.Vec3 {
	var sum geom.Vec3
	count := 0
	for _, e := range cubeEdges {
		d0, d1 := d[e[0]], d[e[1]]
		if (d0 < 0) == (d1 < 0) {
			continue
		}
		t := float64(d0 / (d0 - d1))
		sum = sum.Add(p[e[0]].Add(p[e[1]].Sub(p[e[0]]).Mul(t)))
		count++
	}
	if count == 0 {
		// Only reachable for cells referenced by a quad but never crossed,
		// which an exact distance field does not produce.
		return p[0].Add(p[7]).Mul(0.5)
	}
	return sum.Mul(1 / float64(count))
}

func (r *run) emit(ci int, v geom.Vec3) uint32 {
	idx := r.addVertex(v)
	r.l.cellVerts[ci] = idx
	r.l.vertStamps[ci] = r.l.gen
	return idx
}

func (r *run) addVertex(v geom.Vec3) uint32 {
	idx := uint32(len(r.out.Vertices) / 3)
	r.out.Vertices = append(r.out.Vertices, float32(v[0]), float32(v[1]), float32(v[2]))
	return idx
}

// connect emits a quad for every flagged edge, joining the cell to its
// neighbours on the negative side of the two other axes.
func (r *run) connect() {
	l := r.l
	n := l.cells
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				ci := l.cellIndex(i, j, k)
				if l.maskStamps[ci] != l.gen || l.cellMasks[ci] == 0 {
					continue
				}
				mask := l.cellMasks[ci]
				c := [3]int{i, j, k}
				for a := 0; a < 3; a++ {
					flags := (mask >> (2 * a)) & 3
					if flags == 0 {
						continue
					}
					r.quad(c, a, flags == flagInside)
				}
			}
		}
	}
}

func (r *run) quad(c [3]int, a int, inside bool) {
	b, d := (a+1)%3, (a+2)%3
	if c[b] < 1 || c[d] < 1 {
		return
	}
	if r.g.ClipMax[a] && c[a] == r.l.cells-1 {
		return
	}

	c1, c2, c3 := c, c, c
	c1[b]--
	c2[b]--
	c2[d]--
	c3[d]--

	q := [4]uint32{
		r.vertex(c[0], c[1], c[2]),
		r.vertex(c1[0], c1[1], c1[2]),
		r.vertex(c2[0], c2[1], c2[2]),
		r.vertex(c3[0], c3[1], c3[2]),
	}
	if !inside {
		q[1], q[3] = q[3], q[1]
	}

	if r.distSq(q[0], q[2]) <= r.distSq(q[1], q[3]) {
		r.triangle(q[0], q[1], q[2])
		r.triangle(q[0], q[2], q[3])
	} else {
		r.triangle(q[1], q[2], q[3])
		r.triangle(q[1], q[3], q[0])
	}
}

func (r *run) point(v uint32) geom.Vec3 {
	vs := r.out.Vertices[v*3 : v*3+3]
	return geom.Vec3{float64(vs[0]), float64(vs[1]), float64(vs[2])}
}

func (r *run) distSq(a, b uint32) float64 {
	d := r.point(a).Sub(r.point(b))
	return d.Dot(d)
}

func (r *run) triangle(a, b, c uint32) {
	if r.distSq(a, b) < r.minEdgeSq || r.distSq(b, c) < r.minEdgeSq || r.distSq(c, a) < r.minEdgeSq {
		r.stats.Degenerate++
		return
	}
	r.out.Indices = append(r.out.Indices, a, b, c)
}
