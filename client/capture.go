package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Capturer produces one encoded image per call.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// DirCapturer replays the images of a directory in name order, one per capture,
// drawn onto a fixed-size canvas in cover mode and encoded as JPEG.
type DirCapturer struct {
	canvas  image.Rectangle
	quality int

	mu    sync.Mutex
	files []string
	next  int
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

// NewDirCapturer lists the images in dir once.
func NewDirCapturer(dir string, width, height, quality int) (*DirCapturer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list source directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(files)

	return &DirCapturer{
		canvas:  image.Rect(0, 0, width, height),
		quality: quality,
		files:   files,
	}, nil
}

func (d *DirCapturer) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	path := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	d.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(path), err)
	}

	canvas := image.NewRGBA(d.canvas)
	DrawFit(canvas, src, FitCover, color.Black)
	return encodeJPEG(canvas, d.quality)
}

// PatternCapturer draws a synthetic test frame that changes on every capture.
type PatternCapturer struct {
	canvas  image.Rectangle
	quality int
	now     func() time.Time
}

func NewPatternCapturer(width, height, quality int) *PatternCapturer {
	return &PatternCapturer{
		canvas:  image.Rect(0, 0, width, height),
		quality: quality,
		now:     time.Now,
	}
}

func (p *PatternCapturer) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.canvas.Empty() {
		return nil, errors.New("empty canvas")
	}

	canvas := image.NewRGBA(p.canvas)
	phase := int(p.now().UnixMilli()/40) % p.canvas.Dx()
	w, h := p.canvas.Dx(), p.canvas.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			canvas.SetRGBA(x, y, color.RGBA{
				R: uint8(255 * ((x + phase) % w) / w),
				G: uint8(255 * y / h),
				B: 128,
				A: 255,
			})
		}
	}
	return encodeJPEG(canvas, p.quality)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
