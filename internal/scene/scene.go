// Package scene loads the fields and viewer start position a server boots
// with.
package scene

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"lodmesh/internal/field"
	"lodmesh/internal/geom"
)

// Scene is the file layout:
//
//	viewer: [0, 0, 0]
//	fields:
//	  - shape: sphere
//	    position: [0, 0, 0]
//	    radius: 4
//	  - shape: box
//	    position: [20, 0, 0]
//	    size: [4, 2, 4]
//	    rotation: {axis: [0, 1, 0], angle: 45}
type Scene struct {
	Viewer []float64   `yaml:"viewer,omitempty"`
	Fields []FieldSpec `yaml:"fields"`
}

// FieldSpec describes one field. Which size parameters apply depends on
// Shape: radius for sphere, size for box, major/minor for torus.
type FieldSpec struct {
	Shape    string        `yaml:"shape" json:"shape"`
	Position []float64     `yaml:"position" json:"position"`
	Rotation *RotationSpec `yaml:"rotation,omitempty" json:"rotation,omitempty"`
	Radius   float64       `yaml:"radius,omitempty" json:"radius,omitempty"`
	Size     []float64     `yaml:"size,omitempty" json:"size,omitempty"`
	Major    float64       `yaml:"major,omitempty" json:"major,omitempty"`
	Minor    float64       `yaml:"minor,omitempty" json:"minor,omitempty"`
}

// RotationSpec is an axis and an angle in degrees.
type RotationSpec struct {
	Axis  []float64 `yaml:"axis" json:"axis"`
	Angle float64   `yaml:"angle" json:"angle"`
}

// Target receives the contents of a scene.
type Target interface {
	SetViewer(p geom.Vec3)
	AddField(shape field.Shape, position geom.Vec3, rotation mgl64.Quat) int
}

// Load reads and validates a scene file. An empty path yields an empty scene.
func Load(path string) (Scene, error) {
	var s Scene
	if strings.TrimSpace(path) == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	return Parse(b)
}

// Parse decodes and validates scene YAML.
func Parse(b []byte) (Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("scene: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("scene: %w", err)
	}
	return s, nil
}

// Validate checks every field and the viewer position.
func (s Scene) Validate() error {
	if _, err := vec(s.Viewer, "viewer"); err != nil {
		return err
	}
	for i, fs := range s.Fields {
		if _, _, _, err := fs.Build(); err != nil {
			return fmt.Errorf("fields[%d]: %w", i, err)
		}
	}
	return nil
}

// ViewerPosition returns the viewer start, the origin when unset.
func (s Scene) ViewerPosition() geom.Vec3 {
	v, _ := vec(s.Viewer, "viewer")
	return v
}

// Apply stages the viewer and every field on t and returns the new field ids
// in file order.
func (s Scene) Apply(t Target) ([]int, error) {
	ids := make([]int, 0, len(s.Fields))
	for i, fs := range s.Fields {
		shape, pos, rot, err := fs.Build()
		if err != nil {
			return ids, fmt.Errorf("fields[%d]: %w", i, err)
		}
		ids = append(ids, t.AddField(shape, pos, rot))
	}
	t.SetViewer(s.ViewerPosition())
	return ids, nil
}

// Build turns the field description into the arguments of a field placement.
func (fs FieldSpec) Build() (field.Shape, geom.Vec3, mgl64.Quat, error) {
	pos, err := vec(fs.Position, "position")
	if err != nil {
		return nil, pos, mgl64.Quat{}, err
	}
	size, err := vec(fs.Size, "size")
	if err != nil {
		return nil, pos, mgl64.Quat{}, err
	}
	rot, err := fs.Rotation.quat()
	if err != nil {
		return nil, pos, rot, err
	}
	shape, err := field.NewShape(strings.ToLower(fs.Shape), fs.Radius, size, fs.Major, fs.Minor)
	if err != nil {
		return nil, pos, rot, err
	}
	return shape, pos, rot, nil
}

// Pose returns just the position and rotation, for moving an existing field.
func (fs FieldSpec) Pose() (geom.Vec3, mgl64.Quat, error) {
	pos, err := vec(fs.Position, "position")
	if err != nil {
		return pos, mgl64.Quat{}, err
	}
	rot, err := fs.Rotation.quat()
	return pos, rot, err
}

func (r *RotationSpec) quat() (mgl64.Quat, error) {
	if r == nil {
		return mgl64.QuatIdent(), nil
	}
	axis, err := vec(r.Axis, "rotation axis")
	if err != nil {
		return mgl64.Quat{}, err
	}
	if r.Angle != 0 && axis.Len() == 0 {
		return mgl64.Quat{}, fmt.Errorf("rotation axis must be non-zero")
	}
	return field.AxisAngle(axis, r.Angle), nil
}

// vec accepts an empty slice as the zero vector.
func vec(v []float64, name string) (geom.Vec3, error) {
	switch len(v) {
	case 0:
		return geom.Vec3{}, nil
	case 3:
		return geom.Vec3{v[0], v[1], v[2]}, nil
	default:
		return geom.Vec3{}, fmt.Errorf("%s needs 3 components, got %d", name, len(v))
	}
}
