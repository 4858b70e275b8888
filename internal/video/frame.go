package video

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

// Channels is the number of interleaved samples per pixel (R, G, B).
const Channels = 3

var (
	ErrEmptySequence     = errors.New("frame sequence is empty")
	ErrDimensionMismatch = errors.New("frame dimensions differ within sequence")
	ErrMalformedFrame    = errors.New("malformed frame")
	errShortRGB24Buffer  = errors.New("rgb24 buffer shorter than one frame")
)

// Frame is a 3-channel raster image. Pix holds row-major interleaved R,G,B
// samples in [0, 255] as float64 so stages can work without quantizing.
type Frame struct {
	Width  int
	Height int
	Pix    []float64
}

// Sequence is an ordered run of frames that share one size.
type Sequence []Frame

// NewFrame allocates a black frame.
func NewFrame(width, height int) Frame {
	return Frame{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height*Channels),
	}
}

// Solid returns a frame filled with one color.
func Solid(width, height int, r, g, b float64) Frame {
	f := NewFrame(width, height)
	for i := 0; i < len(f.Pix); i += Channels {
		f.Pix[i] = r
		f.Pix[i+1] = g
		f.Pix[i+2] = b
	}
	return f
}

// Offset returns the index of channel 0 of pixel (x, y) in Pix.
func (f Frame) Offset(x, y int) int {
	return (y*f.Width + x) * Channels
}

// Pixels returns Width*Height.
func (f Frame) Pixels() int {
	return f.Width * f.Height
}

// SameSize reports whether both frames have identical dimensions.
func (f Frame) SameSize(o Frame) bool {
	return f.Width == o.Width && f.Height == o.Height
}

// Clone returns a deep copy.
func (f Frame) Clone() Frame {
	pix := make([]float64, len(f.Pix))
	copy(pix, f.Pix)
	return Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// Validate checks that the dimensions are positive and Pix matches them.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: non-positive size %dx%d", ErrMalformedFrame, f.Width, f.Height)
	}
	if want := f.Pixels() * Channels; len(f.Pix) != want {
		return fmt.Errorf("%w: %dx%d frame has %d samples, want %d", ErrMalformedFrame, f.Width, f.Height, len(f.Pix), want)
	}
	return nil
}

// RGB24 quantizes the frame to packed 8-bit RGB, rounding and clamping each sample.
func (f Frame) RGB24() []byte {
	out := make([]byte, len(f.Pix))
	for i, v := range f.Pix {
		out[i] = Quantize(v)
	}
	return out
}

// Image converts the frame to an opaque RGBA image.
func (f Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			idx := f.Offset(x, y)
			img.SetRGBA(x, y, color.RGBA{
				R: Quantize(f.Pix[idx]),
				G: Quantize(f.Pix[idx+1]),
				B: Quantize(f.Pix[idx+2]),
				A: 255,
			})
		}
	}
	return img
}

// FromRGB24 builds a frame from packed 8-bit RGB data.
func FromRGB24(data []byte, width, height int) (Frame, error) {
	want := width * height * Channels
	if width <= 0 || height <= 0 || len(data) != want {
		return Frame{}, fmt.Errorf("%w: %d bytes for %dx%d rgb24", ErrMalformedFrame, len(data), width, height)
	}
	f := NewFrame(width, height)
	for i, b := range data {
		f.Pix[i] = float64(b)
	}
	return f, nil
}

// FromImage converts any image to a frame, dropping alpha. Colors are read
// unpremultiplied, so translucent pixels keep their RGB values.
func FromImage(img image.Image) Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < f.Height; y++ {
			row := nrgba.Pix[nrgba.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < f.Width; x++ {
				src := x * 4
				dst := f.Offset(x, y)
				f.Pix[dst] = float64(row[src])
				f.Pix[dst+1] = float64(row[src+1])
				f.Pix[dst+2] = float64(row[src+2])
			}
		}
		return f
	}

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			dst := f.Offset(x, y)
			f.Pix[dst] = float64(c.R)
			f.Pix[dst+1] = float64(c.G)
			f.Pix[dst+2] = float64(c.B)
		}
	}
	return f
}

// Quantize rounds a sample to the nearest integer and clamps it to [0, 255].
// NaN maps to 0.
func Quantize(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}

// Clamp limits v to [0, 255]. NaN passes through so callers can detect it.
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// Validate checks the sequence is non-empty and every frame is well formed
// and the same size as the first.
func (s Sequence) Validate() error {
	if len(s) == 0 {
		return ErrEmptySequence
	}
	for i, f := range s {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if !f.SameSize(s[0]) {
			return fmt.Errorf("%w: frame %d is %dx%d, frame 0 is %dx%d",
				ErrDimensionMismatch, i, f.Width, f.Height, s[0].Width, s[0].Height)
		}
	}
	return nil
}

// Size returns the dimensions shared by the sequence, or zeros when empty.
func (s Sequence) Size() (width, height int) {
	if len(s) == 0 {
		return 0, 0
	}
	return s[0].Width, s[0].Height
}

// Clone deep-copies every frame.
func (s Sequence) Clone() Sequence {
	out := make(Sequence, len(s))
	for i, f := range s {
		out[i] = f.Clone()
	}
	return out
}

// RGB24 quantizes every frame.
func (s Sequence) RGB24() [][]byte {
	out := make([][]byte, len(s))
	for i, f := range s {
		out[i] = f.RGB24()
	}
	return out
}
