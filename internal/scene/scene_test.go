package scene

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"lodmesh/internal/field"
	"lodmesh/internal/geom"
)

const sample = `
viewer: [1, 2, 3]
fields:
  - shape: sphere
    position: [0, 0, 0]
    radius: 4
  - shape: box
    position: [20, 0, 0]
    size: [4, 2, 4]
    rotation: {axis: [0, 1, 0], angle: 90}
  - shape: Torus
    position: [-20, 0, 0]
    major: 3
    minor: 1
`

type placed struct {
	shape field.Shape
	pos   geom.Vec3
	rot   mgl64.Quat
}

type recorder struct {
	viewer geom.Vec3
	fields []placed
}

func (r *recorder) SetViewer(p geom.Vec3) { r.viewer = p }

func (r *recorder) AddField(s field.Shape, p geom.Vec3, q mgl64.Quat) int {
	r.fields = append(r.fields, placed{s, p, q})
	return len(r.fields) - 1
}

func TestParseAndApply(t *testing.T) {
	s, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	r := &recorder{}
	ids, err := s.Apply(r)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(ids) != 3 || ids[2] != 2 {
		t.Errorf("Expected ids [0 1 2], got %v", ids)
	}
	if r.viewer != (geom.Vec3{1, 2, 3}) {
		t.Errorf("Expected viewer (1,2,3), got %v", r.viewer)
	}

	if sp, ok := r.fields[0].shape.(field.Sphere); !ok || sp.R != 4 {
		t.Errorf("Expected sphere r=4, got %#v", r.fields[0].shape)
	}
	box, ok := r.fields[1].shape.(field.Box)
	if !ok || box.Half != (geom.Vec3{2, 1, 2}) {
		t.Errorf("Expected box half (2,1,2), got %#v", r.fields[1].shape)
	}
	// 90 degrees about y maps +x to -z.
	got := r.fields[1].rot.Rotate(geom.Vec3{1, 0, 0})
	if math.Abs(got[2]+1) > 1e-9 {
		t.Errorf("Expected +x rotated to -z, got %v", got)
	}
	if _, ok := r.fields[2].shape.(field.Torus); !ok {
		t.Errorf("Expected torus, got %#v", r.fields[2].shape)
	}
}

func TestValidationNamesField(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown shape", "fields:\n  - shape: cone\n", "fields[0]"},
		{"bad radius", "fields:\n  - shape: sphere\n    radius: 1\n  - shape: sphere\n    radius: -1\n", "fields[1]"},
		{"short position", "fields:\n  - shape: sphere\n    radius: 1\n    position: [1, 2]\n", "position needs 3"},
		{"zero axis", "fields:\n  - shape: sphere\n    radius: 1\n    rotation: {axis: [0, 0, 0], angle: 10}\n", "axis"},
		{"bad viewer", "viewer: [1]\n", "viewer"},
		{"not yaml", "fields: [", "scene:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	if s, err := Load(""); err != nil || len(s.Fields) != 0 {
		t.Errorf("Expected empty scene for empty path, got %+v (%v)", s, err)
	}

	path := filepath.Join(t.TempDir(), "scene.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Fields) != 3 {
		t.Errorf("Expected 3 fields, got %d", len(s.Fields))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestPose(t *testing.T) {
	fs := FieldSpec{Position: []float64{1, 0, 0}}
	pos, rot, err := fs.Pose()
	if err != nil {
		t.Fatalf("Pose: %v", err)
	}
	if pos != (geom.Vec3{1, 0, 0}) || rot != mgl64.QuatIdent() {
		t.Errorf("Expected (1,0,0) with identity, got %v %v", pos, rot)
	}
}
