package client

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/draw"
)

// ErrDecode marks payloads that are not a decodable image.
var ErrDecode = errors.New("decode failure")

// FitMode selects how a source image is mapped onto a fixed-size surface.
type FitMode int

const (
	// FitContain scales the whole image inside the surface and letterboxes the rest.
	FitContain FitMode = iota
	// FitCover fills the surface and crops what overflows.
	FitCover
)

// FitRect returns where an image of size src lands inside dst: scaled with its
// aspect ratio preserved and centered. For FitCover the result may exceed dst.
func FitRect(src image.Point, dst image.Rectangle, mode FitMode) image.Rectangle {
	if src.X <= 0 || src.Y <= 0 || dst.Empty() {
		return image.Rectangle{}
	}

	sx := float64(dst.Dx()) / float64(src.X)
	sy := float64(dst.Dy()) / float64(src.Y)
	scale := math.Min(sx, sy)
	if mode == FitCover {
		scale = math.Max(sx, sy)
	}

	w := int(math.Round(float64(src.X) * scale))
	h := int(math.Round(float64(src.Y) * scale))
	x := dst.Min.X + (dst.Dx()-w)/2
	y := dst.Min.Y + (dst.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// DrawFit clears dst to bg and draws src onto it according to mode.
func DrawFit(dst draw.Image, src image.Image, mode FitMode, bg color.Color) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	r := FitRect(src.Bounds().Size(), dst.Bounds(), mode)
	if r.Empty() {
		return
	}
	draw.ApproxBiLinear.Scale(dst, r, src, src.Bounds(), draw.Over, nil)
}

// Renderer displays a freshly pulled image payload.
type Renderer interface {
	Render(payload []byte) error
}

// FrameSink receives every rendered surface.
type FrameSink func(frame *image.RGBA) error

// SurfaceRenderer decodes payloads onto a fixed-size surface, letterboxed.
type SurfaceRenderer struct {
	mu      sync.Mutex
	surface *image.RGBA
	sink    FrameSink
}

// NewSurfaceRenderer creates a renderer for a width x height viewport. sink may be nil.
func NewSurfaceRenderer(width, height int, sink FrameSink) *SurfaceRenderer {
	return &SurfaceRenderer{
		surface: image.NewRGBA(image.Rect(0, 0, width, height)),
		sink:    sink,
	}
}

// Render decodes payload and draws it; the surface is left untouched on decode failure.
func (r *SurfaceRenderer) Render(payload []byte) error {
	src, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	DrawFit(r.surface, src, FitContain, color.Black)
	if r.sink != nil {
		return r.sink(r.surface)
	}
	return nil
}

// Surface returns a copy of the current surface.
func (r *SurfaceRenderer) Surface() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := image.NewRGBA(r.surface.Bounds())
	copy(out.Pix, r.surface.Pix)
	return out
}

// PNGFileSink writes each frame to path, replacing the previous file atomically.
func PNGFileSink(path string) FrameSink {
	return func(frame *image.RGBA) error {
		tmp, err := os.CreateTemp(filepath.Dir(path), ".frame-*")
		if err != nil {
			return err
		}
		if err := png.Encode(tmp, frame); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return err
		}
		return os.Rename(tmp.Name(), path)
	}
}
