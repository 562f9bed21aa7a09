package field

import (
	"fmt"
	"math"

	"lodmesh/internal/geom"
)

// Shape is a signed distance function in local space, centred on the origin.
type Shape interface {
	Distance(p geom.Vec3) float64
	Radius() float64 // bounding sphere radius around the local origin
	Name() string
}

// Sphere is a ball of radius R.
type Sphere struct {
	R float64
}

func (s Sphere) Distance(p geom.Vec3) float64 { return p.Len() - s.R }
func (s Sphere) Radius() float64 { return s.R }
func (s Sphere) Name() string { return "sphere" }

// Box is an axis-aligned box with half extents Half.
type Box struct {
	Half geom.Vec3
}

func (b Box) Distance(p geom.Vec3) float64 {
	var outside float64
	inside := math.Inf(-1)
	for a := 0; a < 3; a++ {
		q := math.Abs(p[a]) - b.Half[a]
		if q > 0 {
			outside += q * q
		}
		inside = math.Max(inside, q)
	}
	return math.Sqrt(outside) + math.Min(inside, 0)
}

func (b Box) Radius() float64 { return b.Half.Len() }
func (b Box) Name() string { return "box" }

// Torus lies in the local XZ plane with ring radius Major and tube radius
// Minor.
type Torus struct {
	Major float64
	Minor float64
}

func (t Torus) Distance(p geom.Vec3) float64 {
	ring := math.Hypot(p[0], p[2]) - t.Major
	return math.Hypot(ring, p[1]) - t.Minor
}

func (t Torus) Radius() float64 { return t.Major + t.Minor }
func (t Torus) Name() string { return "torus" }

// NewShape builds a shape by name. size is the full box edge per axis.
func NewShape(name string, radius float64, size geom.Vec3, major, minor float64) (Shape, error) {
	switch name {
	case "sphere":
		if radius <= 0 {
			return nil, fmt.Errorf("sphere radius must be positive, got %g", radius)
		}
		return Sphere{R: radius}, nil
	case "box":
		if size[0] <= 0 || size[1] <= 0 || size[2] <= 0 {
			return nil, fmt.Errorf("box size must be positive, got %v", size)
		}
		return Box{Half: size.Mul(0.5)}, nil
	case "torus":
		if major <= 0 || minor <= 0 {
			return nil, fmt.Errorf("torus radii must be positive, got %g/%g", major, minor)
		}
		return Torus{Major: major, Minor: minor}, nil
	default:
		return nil, fmt.Errorf("unknown shape %q", name)
	}
}
