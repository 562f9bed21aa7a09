package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"
)

// Plane selects which two world axes a preview projects onto.
type Plane string

const (
	PlaneXZ Plane = "xz" // top down
	PlaneXY Plane = "xy" // front
	PlaneZY Plane = "zy" // side
)

// ParsePlane validates a plane name. Empty selects PlaneXZ.
func ParsePlane(s string) (Plane, error) {
	switch Plane(s) {
	case "":
		return PlaneXZ, nil
	case PlaneXZ, PlaneXY, PlaneZY:
		return Plane(s), nil
	default:
		return "", fmt.Errorf("unknown plane %q", s)
	}
}

func (p Plane) axes() (int, int) {
	switch p {
	case PlaneXY:
		return 0, 1
	case PlaneZY:
		return 2, 1
	default:
		return 0, 2
	}
}

// PreviewOptions controls preview rendering.
type PreviewOptions struct {
	Plane  Plane
	Size   int // Square image edge in pixels
	Margin float64
}

// DefaultPreviewOptions returns a 512px top-down preview.
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{Plane: PlaneXZ, Size: 512, Margin: 16}
}

// Preview renders an orthographic wireframe of the meshes. The view is
// fitted to the bounds of all vertices; with no geometry the image is blank.
func Preview(meshes []*Mesh, opts PreviewOptions) image.Image {
	return draw(meshes, opts).Image()
}

// WritePreviewPNG renders a preview and encodes it as PNG.
func WritePreviewPNG(w io.Writer, meshes []*Mesh, opts PreviewOptions) error {
	return draw(meshes, opts).EncodePNG(w)
}

func draw(meshes []*Mesh, opts PreviewOptions) *gg.Context {
	if opts.Size <= 0 {
		opts.Size = DefaultPreviewOptions().Size
	}
	u, v := opts.Plane.axes()

	dc := gg.NewContext(opts.Size, opts.Size)
	dc.SetColor(color.RGBA{12, 12, 28, 255})
	dc.DrawRectangle(0, 0, float64(opts.Size), float64(opts.Size))
	dc.Fill()

	minU, minV := math.Inf(1), math.Inf(1)
	maxU, maxV := math.Inf(-1), math.Inf(-1)
	for _, m := range meshes {
		for i := 0; i+2 < len(m.Vertices); i += 3 {
			pu, pv := float64(m.Vertices[i+u]), float64(m.Vertices[i+v])
			minU, maxU = math.Min(minU, pu), math.Max(maxU, pu)
			minV, maxV = math.Min(minV, pv), math.Max(maxV, pv)
		}
	}
	if math.IsInf(minU, 1) {
		return dc
	}

	span := math.Max(maxU-minU, maxV-minV)
	if span <= 0 {
		span = 1
	}
	inner := float64(opts.Size) - 2*opts.Margin
	scale := inner / span
	offU := opts.Margin + (inner-(maxU-minU)*scale)/2
	offV := opts.Margin + (inner-(maxV-minV)*scale)/2

	project := func(m *Mesh, idx uint32) (float64, float64) {
		base := int(idx) * 3
		x := offU + (float64(m.Vertices[base+u])-minU)*scale
		// Image y grows downward.
		y := float64(opts.Size) - (offV + (float64(m.Vertices[base+v])-minV)*scale)
		return x, y
	}

	dc.SetLineWidth(1)
	for _, m := range meshes {
		dc.SetColor(meshColor(m.ChunkID))
		for t := 0; t+2 < len(m.Indices); t += 3 {
			x0, y0 := project(m, m.Indices[t])
			x1, y1 := project(m, m.Indices[t+1])
			x2, y2 := project(m, m.Indices[t+2])
			dc.MoveTo(x0, y0)
			dc.LineTo(x1, y1)
			dc.LineTo(x2, y2)
			dc.ClosePath()
		}
		dc.Stroke()
	}

	return dc
}

// meshColor gives each chunk a stable, distinguishable tint.
func meshColor(id int) color.RGBA {
	h := uint32(id)*2654435761 + 1
	return color.RGBA{
		R: uint8(120 + h%136),
		G: uint8(120 + (h>>8)%136),
		B: uint8(120 + (h>>16)%136),
		A: 200,
	}
}
