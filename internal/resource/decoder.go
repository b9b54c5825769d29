// Package resource decodes retrieved tile payloads into cacheable resources.
package resource

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register imagery formats
	_ "image/png"
	"math"
	"sync/atomic"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode wraps every decoding failure.
var ErrDecode = errors.New("decode failed")

// Decoder turns a payload into a resource and its size in bytes.
type Decoder interface {
	Decode(data []byte) (resource any, size int64, err error)
}

// Texture is decoded imagery in RGBA. A texture is shared by every holder of
// its cache key, so the image stays readable after the cache lets it go.
type Texture struct {
	Image    *image.RGBA
	released atomic.Bool
}

// Width is the image width in pixels.
func (t *Texture) Width() int { return t.Image.Bounds().Dx() }

// Height is the image height in pixels.
func (t *Texture) Height() int { return t.Image.Bounds().Dy() }

// Release marks the texture as no longer cached. The pixel buffer is left to
// the garbage collector once the last holder drops it.
func (t *Texture) Release() { t.released.Store(true) }

// Released reports whether the cache has let the texture go.
func (t *Texture) Released() bool { return t.released.Load() }

// ImageDecoder decodes PNG, JPEG, WebP and TIFF imagery. When Width and
// Height are set, images of another size are rescaled to them.
type ImageDecoder struct {
	Width  int
	Height int
}

// Decode decodes an image into a Texture sized w*h*4 bytes.
func (d ImageDecoder) Decode(data []byte) (any, int64, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: image: %v", ErrDecode, err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if d.Width > 0 && d.Height > 0 {
		w, h = d.Width, d.Height
	}
	if w == 0 || h == 0 {
		return nil, 0, fmt.Errorf("%w: empty %s image", ErrDecode, format)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}
	return &Texture{Image: dst}, int64(w) * int64(h) * 4, nil
}

// ElevationGrid holds elevations in meters, row-major from the north-west
// corner.
type ElevationGrid struct {
	Width  int
	Height int
	Values []float32
	Min    float32
	Max    float32
}

// At returns the elevation at column x, row y.
func (g *ElevationGrid) At(x, y int) float32 {
	return g.Values[y*g.Width+x]
}

// ElevationDecoder decodes little-endian signed 16-bit BIL elevations. When
// Width and Height are zero the grid is assumed square. Samples equal to
// MissingValue are replaced by zero.
type ElevationDecoder struct {
	Width        int
	Height       int
	MissingValue int16
}

// Decode decodes BIL16 samples into an ElevationGrid.
func (d ElevationDecoder) Decode(data []byte) (any, int64, error) {
	if len(data) == 0 || len(data)%2 != 0 {
		return nil, 0, fmt.Errorf("%w: bil16 payload of %d bytes", ErrDecode, len(data))
	}
	n := len(data) / 2
	w, h := d.Width, d.Height
	if w == 0 || h == 0 {
		side := int(math.Sqrt(float64(n)))
		if side*side != n {
			return nil, 0, fmt.Errorf("%w: %d samples do not form a square grid", ErrDecode, n)
		}
		w, h = side, side
	}
	if w*h != n {
		return nil, 0, fmt.Errorf("%w: %d samples, want %dx%d", ErrDecode, n, w, h)
	}

	samples := make([]int16, n)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, samples); err != nil {
		return nil, 0, fmt.Errorf("%w: bil16: %v", ErrDecode, err)
	}

	g := &ElevationGrid{Width: w, Height: h, Values: make([]float32, n)}
	g.Min, g.Max = math.MaxFloat32, -math.MaxFloat32
	for i, s := range samples {
		v := float32(s)
		if s == d.MissingValue && d.MissingValue != 0 {
			v = 0
		}
		g.Values[i] = v
		g.Min = min(g.Min, v)
		g.Max = max(g.Max, v)
	}
	return g, int64(n) * 4, nil
}

// DecoderFor returns the decoder for a resource type: "elevation" selects
// BIL16 elevations, anything else imagery.
func DecoderFor(resourceType string, width, height int) Decoder {
	if resourceType == "elevation" {
		return ElevationDecoder{Width: width, Height: height, MissingValue: math.MinInt16}
	}
	return ImageDecoder{Width: width, Height: height}
}
