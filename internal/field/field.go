// Package field places signed distance shapes in the world and tracks the
// bound changes the chunk manager has to invalidate.
package field

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"lodmesh/internal/geom"
)

// Field is a shape with a position and rotation. Moving a field stages a
// new bound; the owner folds it into the current bound with CommitUpdate
// once the old region has been invalidated.
type Field struct {
	ID int

	shape    Shape
	position geom.Vec3
	rotation mgl64.Quat
	inverse  mgl64.Quat

	current geom.Bound
	next    geom.Bound
	dirty   bool
}

// Init places shape at position with rotation. Both bounds start out equal.
func (f *Field) Init(shape Shape, position geom.Vec3, rotation mgl64.Quat) {
	f.shape = shape
	f.setPose(position, rotation)
	f.current = f.next
	f.dirty = false
}

// Reset clears the field for reuse.
func (f *Field) Reset() {
	f.shape = nil
	f.dirty = false
}

// Move changes the pose and stages the matching bound.
func (f *Field) Move(position geom.Vec3, rotation mgl64.Quat) {
	f.setPose(position, rotation)
	f.dirty = true
}

func (f *Field) setPose(position geom.Vec3, rotation mgl64.Quat) {
	if rotation.Len() == 0 {
		rotation = mgl64.QuatIdent()
	}
	f.position = position
	f.rotation = rotation.Normalize()
	f.inverse = f.rotation.Inverse()
	f.next = geom.Sphere(position, f.shape.Radius())
}

// CommitUpdate folds the staged bound into the current bound.
func (f *Field) CommitUpdate() {
	f.current = f.next
	f.dirty = false
}

// Dirty reports whether a staged bound is waiting to be committed.
func (f *Field) Dirty() bool { return f.dirty }

// CurrentBounds returns the committed bound.
func (f *Field) CurrentBounds() geom.Bound { return f.current }

// NewBounds returns the staged bound. Equal to CurrentBounds when clean.
func (f *Field) NewBounds() geom.Bound { return f.next }

func (f *Field) Shape() Shape { return f.shape }

func (f *Field) Position() geom.Vec3 { return f.position }

func (f *Field) Rotation() mgl64.Quat { return f.rotation }

// BoundingRadius returns the radius of the sphere enclosing the shape.
func (f *Field) BoundingRadius() float64 { return f.shape.Radius() }

// Sample returns the signed distance at world position p.
func (f *Field) Sample(p geom.Vec3) float64 {
	local := f.inverse.Rotate(p.Sub(f.position))
	return f.shape.Distance(local)
}

// Distance returns the union distance of fields at p: the minimum over all
// fields, +Inf when fields is empty.
func Distance(fields []*Field, p geom.Vec3) float64 {
	d := math.Inf(1)
	for _, f := range fields {
		if v := f.Sample(p); v < d {
			d = v
		}
	}
	return d
}

// Union returns a sampler over the union of fields.
func Union(fields ...*Field) func(p geom.Vec3) float64 {
	return func(p geom.Vec3) float64 {
		return Distance(fields, p)
	}
}

// Info is a read-only description of a field.
type Info struct {
	ID       int        `json:"id"`
	Shape    string     `json:"shape"`
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"` // x, y, z, w
	Radius   float64    `json:"radius"`
	Dirty    bool       `json:"dirty"`
}

// Info describes the field.
func (f *Field) Info() Info {
	q := f.rotation
	return Info{
		ID:       f.ID,
		Shape:    f.shape.Name(),
		Position: [3]float64(f.position),
		Rotation: [4]float64{q.V[0], q.V[1], q.V[2], q.W},
		Radius:   f.shape.Radius(),
		Dirty:    f.dirty,
	}
}

// AxisAngle builds a rotation from an axis and an angle in degrees. A zero
// axis gives the identity.
func AxisAngle(axis geom.Vec3, degrees float64) mgl64.Quat {
	if axis.Len() == 0 || degrees == 0 {
		return mgl64.QuatIdent()
	}
	return mgl64.QuatRotate(mgl64.DegToRad(degrees), axis.Normalize())
}
