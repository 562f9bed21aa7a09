// Package geom holds the small amount of 3D geometry shared by the spatial
// index, the chunk manager and the fields: axis-aligned boxes and the closed
// sphere|box bound variant.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 is the vector type used across the module.
type Vec3 = mgl64.Vec3

// Box is an axis-aligned box. Overlap and containment tests are inclusive.
type Box struct {
	Min Vec3
	Max Vec3
}

// Cube returns the cube with the given minimum corner and edge length.
func Cube(origin Vec3, size float64) Box {
	return Box{Min: origin, Max: origin.Add(Vec3{size, size, size})}
}

// CubeAround returns the cube of edge length size centered on c.
func CubeAround(c Vec3, size float64) Box {
	h := size / 2
	return Box{Min: c.Sub(Vec3{h, h, h}), Max: c.Add(Vec3{h, h, h})}
}

// Center returns the box midpoint.
func (b Box) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extent returns the edge lengths per axis.
func (b Box) Extent() Vec3 {
	return b.Max.Sub(b.Min)
}

// Size returns the longest edge.
func (b Box) Size() float64 {
	e := b.Extent()
	return math.Max(e[0], math.Max(e[1], e[2]))
}

// Overlaps reports whether b and o share any point.
func (b Box) Overlaps(o Box) bool {
	return b.Min[0] <= o.Max[0] && b.Max[0] >= o.Min[0] &&
		b.Min[1] <= o.Max[1] && b.Max[1] >= o.Min[1] &&
		b.Min[2] <= o.Max[2] && b.Max[2] >= o.Min[2]
}

// Intersects reports whether b and o share volume. Touching faces do not
// count.
func (b Box) Intersects(o Box) bool {
	return b.Min[0] < o.Max[0] && b.Max[0] > o.Min[0] &&
		b.Min[1] < o.Max[1] && b.Max[1] > o.Min[1] &&
		b.Min[2] < o.Max[2] && b.Max[2] > o.Min[2]
}

// OverlapsSphere tests the box against a sphere given its squared radius
// (Arvo's algorithm).
func (b Box) OverlapsSphere(c Vec3, radiusSq float64) bool {
	return b.distanceSq(c) <= radiusSq
}

// DistanceToPoint returns the Euclidean distance from p to the box, zero when
// p is inside.
func (b Box) DistanceToPoint(p Vec3) float64 {
	return math.Sqrt(b.distanceSq(p))
}

func (b Box) distanceSq(p Vec3) float64 {
	d := 0.0
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			e := p[i] - b.Min[i]
			d += e * e
		} else if p[i] > b.Max[i] {
			e := p[i] - b.Max[i]
			d += e * e
		}
	}
	return d
}

// ContainsPoint reports whether p lies inside or on the box.
func (b Box) ContainsPoint(p Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// ContainsBox reports whether o lies entirely inside b.
func (b Box) ContainsBox(o Box) bool {
	return b.ContainsPoint(o.Min) && b.ContainsPoint(o.Max)
}

// Octant returns one of the 8 equal sub-boxes. Bit 0 of i selects the upper
// half on x, bit 1 on y, bit 2 on z.
func (b Box) Octant(i int) Box {
	c := b.Center()
	var o Box
	for axis := 0; axis < 3; axis++ {
		if i&(1<<axis) != 0 {
			o.Min[axis], o.Max[axis] = c[axis], b.Max[axis]
		} else {
			o.Min[axis], o.Max[axis] = b.Min[axis], c[axis]
		}
	}
	return o
}

// Expand grows the box by s on every side. Negative s shrinks it.
func (b Box) Expand(s float64) Box {
	d := Vec3{s, s, s}
	return Box{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box {
	var u Box
	for i := 0; i < 3; i++ {
		u.Min[i] = math.Min(b.Min[i], o.Min[i])
		u.Max[i] = math.Max(b.Max[i], o.Max[i])
	}
	return u
}
