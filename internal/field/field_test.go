package field

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"lodmesh/internal/geom"
)

func TestShapeDistances(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		p     geom.Vec3
		want  float64
	}{
		{"sphere centre", Sphere{R: 2}, geom.Vec3{}, -2},
		{"sphere surface", Sphere{R: 2}, geom.Vec3{0, 2, 0}, 0},
		{"sphere outside", Sphere{R: 2}, geom.Vec3{3, 0, 0}, 1},
		{"box face", Box{Half: geom.Vec3{1, 1, 1}}, geom.Vec3{1.5, 0, 0}, 0.5},
		{"box inside", Box{Half: geom.Vec3{1, 2, 3}}, geom.Vec3{0, 0, 0}, -1},
		{"box corner", Box{Half: geom.Vec3{1, 1, 1}}, geom.Vec3{2, 2, 1}, math.Sqrt2},
		{"torus tube centre", Torus{Major: 3, Minor: 1}, geom.Vec3{3, 0, 0}, -1},
		{"torus hole", Torus{Major: 3, Minor: 1}, geom.Vec3{}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.shape.Distance(tt.p); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Expected %g, got %g", tt.want, got)
			}
		})
	}
}

func TestSampleAppliesPose(t *testing.T) {
	var f Field
	// A long box rotated 90 degrees about z lies along y.
	f.Init(Box{Half: geom.Vec3{4, 1, 1}}, geom.Vec3{10, 0, 0}, AxisAngle(geom.Vec3{0, 0, 1}, 90))

	if d := f.Sample(geom.Vec3{10, 3.5, 0}); d >= 0 {
		t.Errorf("Expected point along rotated long axis inside, got %g", d)
	}
	if d := f.Sample(geom.Vec3{13.5, 0, 0}); d <= 0 {
		t.Errorf("Expected point along original long axis outside, got %g", d)
	}
}

func TestMoveStagesBounds(t *testing.T) {
	var f Field
	f.Init(Sphere{R: 1}, geom.Vec3{}, mgl64.QuatIdent())

	if f.Dirty() {
		t.Error("Expected a fresh field to be clean")
	}
	f.Move(geom.Vec3{5, 0, 0}, mgl64.QuatIdent())
	if !f.Dirty() {
		t.Error("Expected dirty after Move")
	}
	if f.CurrentBounds().Center != (geom.Vec3{}) {
		t.Errorf("Expected current bound unchanged, got %v", f.CurrentBounds())
	}
	if f.NewBounds().Center != (geom.Vec3{5, 0, 0}) {
		t.Errorf("Expected staged bound at new position, got %v", f.NewBounds())
	}

	f.CommitUpdate()
	if f.Dirty() || f.CurrentBounds() != f.NewBounds() {
		t.Error("Expected commit to fold the staged bound")
	}
}

func TestZeroRotationIsIdentity(t *testing.T) {
	var f Field
	f.Init(Sphere{R: 1}, geom.Vec3{1, 2, 3}, mgl64.Quat{})
	if d := f.Sample(geom.Vec3{1, 2, 3}); d != -1 {
		t.Errorf("Expected -1 at centre, got %g", d)
	}
}

func TestUnionTakesMinimum(t *testing.T) {
	var a, b Field
	a.Init(Sphere{R: 1}, geom.Vec3{-2, 0, 0}, mgl64.QuatIdent())
	b.Init(Sphere{R: 1}, geom.Vec3{2, 0, 0}, mgl64.QuatIdent())

	u := Union(&a, &b)
	if d := u(geom.Vec3{2, 0, 0}); d != -1 {
		t.Errorf("Expected -1 inside second sphere, got %g", d)
	}
	if d := u(geom.Vec3{}); d != 1 {
		t.Errorf("Expected 1 between spheres, got %g", d)
	}
	if d := Distance(nil, geom.Vec3{}); !math.IsInf(d, 1) {
		t.Errorf("Expected +Inf for no fields, got %g", d)
	}
}

func TestNewShapeValidates(t *testing.T) {
	tests := []struct {
		name    string
		shape   string
		radius  float64
		size    geom.Vec3
		wantErr bool
	}{
		{"sphere", "sphere", 1, geom.Vec3{}, false},
		{"sphere without radius", "sphere", 0, geom.Vec3{}, true},
		{"box", "box", 0, geom.Vec3{1, 2, 3}, false},
		{"flat box", "box", 0, geom.Vec3{1, 0, 3}, true},
		{"unknown", "cone", 1, geom.Vec3{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewShape(tt.shape, tt.radius, tt.size, 0, 0)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}
