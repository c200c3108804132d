package media

import (
	"fmt"
	"image"
	"time"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
)

// PixelFormat identifies the layout of a frame's pixel buffer
type PixelFormat uint8

const (
	FormatRGB24 PixelFormat = iota + 1
	FormatRGBA
)

// BytesPerPixel returns the buffer stride contribution of one pixel
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case FormatRGB24:
		return 3
	case FormatRGBA:
		return 4
	default:
		return 0
	}
}

func (p PixelFormat) String() string {
	switch p {
	case FormatRGB24:
		return "rgb24"
	case FormatRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// Frame is one decoded image. Timestamp is a tick counter starting at zero
// and increasing by one per produced frame; Duration is the tick length at
// the configured frame rate. Frames are immutable once produced and
// ownership transfers to exactly one consumer per pipeline stage.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    PixelFormat
	Timestamp int64
	Duration  time.Duration
}

// NewFrame allocates a zeroed frame buffer
func NewFrame(width, height int, format PixelFormat) *Frame {
	return &Frame{
		Data:   make([]byte, width*height*format.BytesPerPixel()),
		Width:  width,
		Height: height,
		Format: format,
	}
}

// Stride returns the byte width of one pixel row
func (f *Frame) Stride() int {
	return f.Width * f.Format.BytesPerPixel()
}

// Validate checks the buffer length against the declared geometry
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return apperrors.NewAppErrorf(apperrors.ErrCodeFrameInvalid, "frame geometry %dx%d", f.Width, f.Height)
	}
	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return apperrors.NewAppErrorf(apperrors.ErrCodeFrameInvalid, "unknown pixel format %d", uint8(f.Format))
	}
	if want := f.Width * f.Height * bpp; len(f.Data) != want {
		return apperrors.NewAppErrorf(apperrors.ErrCodeFrameInvalid, "buffer length %d, want %d", len(f.Data), want)
	}
	return nil
}

// Clone returns a deep copy sharing nothing with the original
func (f *Frame) Clone() *Frame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &Frame{
		Data:      data,
		Width:     f.Width,
		Height:    f.Height,
		Format:    f.Format,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
	}
}

// PixelAt returns the color at (x, y). Out-of-bounds coordinates and
// unknown formats return black.
func (f *Frame) PixelAt(x, y int) (r, g, b uint8) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0, 0, 0
	}
	switch f.Format {
	case FormatRGB24:
		i := (y*f.Width + x) * 3
		return f.Data[i], f.Data[i+1], f.Data[i+2]
	case FormatRGBA:
		i := (y*f.Width + x) * 4
		return f.Data[i], f.Data[i+1], f.Data[i+2]
	default:
		return 0, 0, 0
	}
}

// Convert returns the frame re-encoded in the requested format, or the
// receiver itself when it already matches.
func (f *Frame) Convert(format PixelFormat) *Frame {
	if f.Format == format {
		return f
	}
	out := NewFrame(f.Width, f.Height, format)
	out.Timestamp = f.Timestamp
	out.Duration = f.Duration
	switch {
	case f.Format == FormatRGB24 && format == FormatRGBA:
		for i, j := 0, 0; i < len(f.Data); i, j = i+3, j+4 {
			out.Data[j] = f.Data[i]
			out.Data[j+1] = f.Data[i+1]
			out.Data[j+2] = f.Data[i+2]
			out.Data[j+3] = 0xff
		}
	case f.Format == FormatRGBA && format == FormatRGB24:
		for i, j := 0, 0; i < len(f.Data); i, j = i+4, j+3 {
			out.Data[j] = f.Data[i]
			out.Data[j+1] = f.Data[i+1]
			out.Data[j+2] = f.Data[i+2]
		}
	}
	return out
}

// ToRGBA copies the frame into a stdlib RGBA image for rendering
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	switch f.Format {
	case FormatRGBA:
		copy(img.Pix, f.Data)
	case FormatRGB24:
		for i, j := 0, 0; i < len(f.Data); i, j = i+3, j+4 {
			img.Pix[j] = f.Data[i]
			img.Pix[j+1] = f.Data[i+1]
			img.Pix[j+2] = f.Data[i+2]
			img.Pix[j+3] = 0xff
		}
	}
	return img
}

// FromRGBA wraps an RGBA image as a frame without copying when the image
// is tightly packed, copying row by row otherwise.
func FromRGBA(img *image.RGBA) *Frame {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	f := &Frame{Width: w, Height: h, Format: FormatRGBA}
	if img.Stride == 4*w && img.Rect.Min == (image.Point{}) {
		f.Data = img.Pix[:4*w*h]
		return f
	}
	f.Data = make([]byte, 4*w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(f.Data[y*4*w:(y+1)*4*w], img.Pix[off:off+4*w])
	}
	return f
}
