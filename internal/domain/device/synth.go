package device

import (
	"math"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// Synthetic frame patterns.
const (
	PatternPupil  = "pupil"
	PatternMarker = "marker"
	PatternBlank  = "blank"
)

const (
	synthBackground = 200
	synthDark       = 16
)

// SynthFrame renders frame n of a pattern. Positions orbit the image center
// so consecutive frames differ.
func SynthFrame(pattern string, w, h, n int, format packet.ColorFormat) *packet.Frame {
	gray := make([]byte, w*h)
	for i := range gray {
		gray[i] = synthBackground
	}

	phase := float64(n) * 0.1
	cx := float64(w)/2 + 0.15*float64(w)*math.Cos(phase)
	cy := float64(h)/2 + 0.15*float64(h)*math.Sin(phase)
	short := math.Min(float64(w), float64(h))

	switch pattern {
	case PatternPupil:
		fillDisk(gray, w, h, cx, cy, 0.08*short, 0, synthDark)
	case PatternMarker:
		r := 0.12 * short
		fillDisk(gray, w, h, cx, cy, r, 0.65*r, synthDark)
		fillDisk(gray, w, h, cx, cy, 0.25*r, 0, synthDark)
	}

	return expand(gray, w, h, format)
}

// fillDisk paints the annulus inner <= d <= outer around (cx, cy).
func fillDisk(img []byte, w, h int, cx, cy, outer, inner float64, v byte) {
	x0 := int(math.Max(0, math.Floor(cx-outer)))
	x1 := int(math.Min(float64(w-1), math.Ceil(cx+outer)))
	y0 := int(math.Max(0, math.Floor(cy-outer)))
	y1 := int(math.Min(float64(h-1), math.Ceil(cy+outer)))

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			if d <= outer && d >= inner {
				img[y*w+x] = v
			}
		}
	}
}

func expand(gray []byte, w, h int, format packet.ColorFormat) *packet.Frame {
	switch format {
	case packet.ColorBGR24:
		data := make([]byte, 3*len(gray))
		for i, v := range gray {
			data[3*i], data[3*i+1], data[3*i+2] = v, v, v
		}
		return &packet.Frame{Width: w, Height: h, Format: format, Data: data}
	case packet.ColorBayerRGGB8:
		data := make([]byte, len(gray))
		copy(data, gray)
		return &packet.Frame{Width: w, Height: h, Format: format, Data: data}
	default:
		return &packet.Frame{Width: w, Height: h, Format: packet.ColorGray, Data: gray}
	}
}

// SynthMotion renders odometry sample n.
func SynthMotion(n int, ts float64) packet.Motion {
	phase := float64(n) * 0.05
	return packet.Motion{
		Timestamp:       ts,
		Position:        [3]float64{math.Cos(phase), math.Sin(phase), 0},
		Orientation:     [4]float64{1, 0, 0, 0},
		LinearVelocity:  [3]float64{-math.Sin(phase), math.Cos(phase), 0},
		AngularVelocity: [3]float64{0, 0, 0.05},
	}
}
