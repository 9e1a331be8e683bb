package packet

import (
	"errors"
	"fmt"
)

// ColorFormat is the pixel layout of a frame buffer.
type ColorFormat string

const (
	ColorGray       ColorFormat = "gray"
	ColorBGR24      ColorFormat = "bgr24"
	ColorBayerRGGB8 ColorFormat = "bayer_rggb8"
)

// ErrUnsupportedColorFormat is returned by conversions for unknown layouts.
var ErrUnsupportedColorFormat = errors.New("unsupported color format")

// ErrShortFrame is returned when a buffer is smaller than its dimensions imply.
var ErrShortFrame = errors.New("frame buffer shorter than dimensions")

// Channels returns bytes per pixel for the format.
func (c ColorFormat) Channels() int {
	switch c {
	case ColorBGR24:
		return 3
	case ColorGray, ColorBayerRGGB8:
		return 1
	default:
		return 0
	}
}

// Frame is a raw image buffer. Frames are shared by reference between
// steps and must not be modified after they enter a pipeline.
type Frame struct {
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Format ColorFormat `json:"format"`
	Data   []byte      `json:"-"`
}

// Validate checks the buffer against the declared shape.
func (f *Frame) Validate() error {
	ch := f.Format.Channels()
	if ch == 0 {
		return fmt.Errorf("%w: %q", ErrUnsupportedColorFormat, string(f.Format))
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if len(f.Data) < f.Width*f.Height*ch {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrShortFrame, len(f.Data), f.Width*f.Height*ch)
	}
	return nil
}

// At returns the gray intensity of a gray frame at (x, y).
func (f *Frame) At(x, y int) byte {
	return f.Data[y*f.Width+x]
}

// Resolution returns (width, height).
func (f *Frame) Resolution() [2]int {
	return [2]int{f.Width, f.Height}
}

// ToGray converts the frame to an 8-bit gray frame. Gray frames are
// returned as-is.
func (f *Frame) ToGray() (*Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	switch f.Format {
	case ColorGray:
		return f, nil
	case ColorBGR24:
		return f.bgrToGray(), nil
	case ColorBayerRGGB8:
		return f.bayerToGray(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedColorFormat, string(f.Format))
	}
}

// luma uses the ITU-R BT.601 weights in 14-bit fixed point.
func luma(r, g, b int) byte {
	return byte((r*4899 + g*9617 + b*1868 + 8192) >> 14)
}

func (f *Frame) bgrToGray() *Frame {
	n := f.Width * f.Height
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b := int(f.Data[3*i])
		g := int(f.Data[3*i+1])
		r := int(f.Data[3*i+2])
		out[i] = luma(r, g, b)
	}
	return &Frame{Width: f.Width, Height: f.Height, Format: ColorGray, Data: out}
}

// bayerToGray demosaics each 2x2 RGGB cell to one luma value shared by the
// cell's four pixels. Odd trailing rows/columns reuse the last full cell.
func (f *Frame) bayerToGray() *Frame {
	w, h := f.Width, f.Height
	out := make([]byte, w*h)

	px := func(x, y int) int {
		if x >= w {
			x = w - 1
		}
		if y >= h {
			y = h - 1
		}
		return int(f.Data[y*w+x])
	}

	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x += 2 {
			r := px(x, y)
			g := (px(x+1, y) + px(x, y+1)) / 2
			b := px(x+1, y+1)
			v := luma(r, g, b)
			for dy := 0; dy < 2 && y+dy < h; dy++ {
				for dx := 0; dx < 2 && x+dx < w; dx++ {
					out[(y+dy)*w+x+dx] = v
				}
			}
		}
	}
	return &Frame{Width: w, Height: h, Format: ColorGray, Data: out}
}
