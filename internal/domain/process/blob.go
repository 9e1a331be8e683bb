package process

import (
	"math"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// blob is a 4-connected region of dark pixels with its raw moments.
type blob struct {
	area                  int
	sx, sy, sxx, syy, sxy float64
	minX, minY, maxX, maxY int
}

func (b *blob) add(x, y int) {
	fx, fy := float64(x), float64(y)
	b.area++
	b.sx += fx
	b.sy += fy
	b.sxx += fx * fx
	b.syy += fy * fy
	b.sxy += fx * fy
	b.minX = min(b.minX, x)
	b.minY = min(b.minY, y)
	b.maxX = max(b.maxX, x)
	b.maxY = max(b.maxY, y)
}

func (b *blob) centroid() (float64, float64) {
	n := float64(b.area)
	return b.sx / n, b.sy / n
}

// radius is half the longer bounding box side.
func (b *blob) radius() float64 {
	return float64(max(b.maxX-b.minX, b.maxY-b.minY)+1) / 2
}

// ellipse derives the moment ellipse. Axes are full lengths.
func (b *blob) ellipse() packet.Ellipse {
	n := float64(b.area)
	cx, cy := b.centroid()
	mu20 := b.sxx/n - cx*cx
	mu02 := b.syy/n - cy*cy
	mu11 := b.sxy/n - cx*cy

	common := math.Sqrt(math.Max(0, (mu20-mu02)*(mu20-mu02)+4*mu11*mu11))
	l1 := math.Max(0, (mu20+mu02+common)/2)
	l2 := math.Max(0, (mu20+mu02-common)/2)
	angle := 0.5 * math.Atan2(2*mu11, mu20-mu02) * 180 / math.Pi

	return packet.Ellipse{
		Center: [2]float64{cx, cy},
		Axes:   [2]float64{4 * math.Sqrt(l2), 4 * math.Sqrt(l1)},
		Angle:  angle,
	}
}

// findBlobs labels dark regions (value < threshold) of a gray frame.
func findBlobs(gray *packet.Frame, threshold byte, minArea int) []blob {
	w, h := gray.Width, gray.Height
	seen := make([]bool, w*h)
	var blobs []blob
	var stack []int

	for start := range seen {
		if seen[start] || gray.Data[start] >= threshold {
			continue
		}
		b := blob{minX: w, minY: h, maxX: -1, maxY: -1}
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			b.add(x, y)

			for _, j := range [4]int{i - 1, i + 1, i - w, i + w} {
				switch {
				case j < 0 || j >= len(seen):
					continue
				case (j == i-1 && x == 0) || (j == i+1 && x == w-1):
					continue
				case seen[j] || gray.Data[j] >= threshold:
					continue
				}
				seen[j] = true
				stack = append(stack, j)
			}
		}
		if b.area >= minArea {
			blobs = append(blobs, b)
		}
	}
	return blobs
}

// minContrast is the smallest mean-to-darkest spread worth segmenting.
const minContrast = 24

// autoThreshold places the cutoff between the darkest value and the mean.
func autoThreshold(gray *packet.Frame) byte {
	if len(gray.Data) == 0 {
		return 0
	}
	lo := byte(255)
	var sum int
	for _, v := range gray.Data {
		lo = min(lo, v)
		sum += int(v)
	}
	mean := float64(sum) / float64(len(gray.Data))
	if mean-float64(lo) < minContrast {
		return 0
	}
	return byte(float64(lo) + 0.35*(mean-float64(lo)) + 1)
}

func normPos(x, y float64, w, h int) [2]float64 {
	return [2]float64{x / float64(w), 1 - y/float64(h)}
}

// grayFrame reads the packet frame and converts it to 8-bit gray.
func grayFrame(pkt *packet.Packet) (*packet.Frame, error) {
	frame, ok := packet.Value[*packet.Frame](pkt, packet.FieldFrame)
	if !ok || frame == nil {
		return nil, errNoFrame
	}
	if cf, ok := packet.Value[packet.ColorFormat](pkt, packet.FieldColorFormat); ok && cf != "" && cf != frame.Format {
		f := *frame
		f.Format = cf
		frame = &f
	}
	return frame.ToGray()
}
