package geom

import "fmt"

// Kind tags the shape held by a Bound.
type Kind uint8

const (
	KindSphere Kind = iota + 1
	KindBox
)

func (k Kind) String() string {
	switch k {
	case KindSphere:
		return "sphere"
	case KindBox:
		return "box"
	default:
		return "unknown"
	}
}

// Bound is a closed sphere|box variant. Only the fields of the active kind
// are meaningful. Use Sphere or FromBox to build one.
type Bound struct {
	Kind Kind

	// sphere
	Center   Vec3
	Radius   float64
	RadiusSq float64

	// box
	Min Vec3
	Max Vec3
}

// Sphere returns a sphere bound with its squared radius cached.
func Sphere(center Vec3, radius float64) Bound {
	return Bound{Kind: KindSphere, Center: center, Radius: radius, RadiusSq: radius * radius}
}

// FromBox returns a box bound.
func FromBox(b Box) Bound {
	return Bound{Kind: KindBox, Min: b.Min, Max: b.Max}
}

// Box returns the bound's axis-aligned box.
func (b Bound) Box() Box {
	switch b.Kind {
	case KindSphere:
		r := Vec3{b.Radius, b.Radius, b.Radius}
		return Box{Min: b.Center.Sub(r), Max: b.Center.Add(r)}
	case KindBox:
		return Box{Min: b.Min, Max: b.Max}
	default:
		panic(fmt.Sprintf("geom: bound kind %d", b.Kind))
	}
}

// Size returns the bound's diameter: twice the radius of a sphere, the
// longest edge of a box.
func (b Bound) Size() float64 {
	switch b.Kind {
	case KindSphere:
		return 2 * b.Radius
	case KindBox:
		return Box{Min: b.Min, Max: b.Max}.Size()
	default:
		panic(fmt.Sprintf("geom: bound kind %d", b.Kind))
	}
}

// OverlapsBox reports whether the bound touches box.
func (b Bound) OverlapsBox(box Box) bool {
	switch b.Kind {
	case KindSphere:
		return box.OverlapsSphere(b.Center, b.RadiusSq)
	case KindBox:
		return box.Overlaps(Box{Min: b.Min, Max: b.Max})
	default:
		panic(fmt.Sprintf("geom: bound kind %d", b.Kind))
	}
}

// Overlaps reports whether two bounds touch.
func (b Bound) Overlaps(o Bound) bool {
	switch b.Kind {
	case KindSphere:
		switch o.Kind {
		case KindSphere:
			r := b.Radius + o.Radius
			d := b.Center.Sub(o.Center)
			return d.Dot(d) <= r*r
		case KindBox:
			return Box{Min: o.Min, Max: o.Max}.OverlapsSphere(b.Center, b.RadiusSq)
		}
	case KindBox:
		return o.OverlapsBox(Box{Min: b.Min, Max: b.Max})
	}
	panic(fmt.Sprintf("geom: bound kinds %d/%d", b.Kind, o.Kind))
}

// ContainsPoint reports whether p lies inside the bound.
func (b Bound) ContainsPoint(p Vec3) bool {
	switch b.Kind {
	case KindSphere:
		d := p.Sub(b.Center)
		return d.Dot(d) <= b.RadiusSq
	case KindBox:
		return Box{Min: b.Min, Max: b.Max}.ContainsPoint(p)
	default:
		panic(fmt.Sprintf("geom: bound kind %d", b.Kind))
	}
}

func (b Bound) String() string {
	switch b.Kind {
	case KindSphere:
		return fmt.Sprintf("sphere(%v, r=%g)", b.Center, b.Radius)
	case KindBox:
		return fmt.Sprintf("box(%v..%v)", b.Min, b.Max)
	default:
		return "bound(?)"
	}
}
