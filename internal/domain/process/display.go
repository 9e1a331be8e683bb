package process

import (
	"context"
	"math"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// Viewer receives preview frames. Implementations must not retain frame
// data past the call without copying it.
type Viewer interface {
	Show(stream, title string, frame *packet.Frame)
}

// NopViewer discards frames.
type NopViewer struct{}

func (NopViewer) Show(string, string, *packet.Frame) {}

// VideoDisplay publishes each frame to a Viewer, optionally annotated with
// the pupil, markers and gaze points found on the packet.
type VideoDisplay struct {
	*Base
	title    string
	annotate bool
	viewer   Viewer
}

// NewVideoDisplay builds the preview sink.
func NewVideoDisplay(cfg VideoDisplayConfig, env Env) *VideoDisplay {
	d := &VideoDisplay{
		Base:     newBase(KindVideoDisplay, cfg.Blocking(), env),
		title:    cfg.Title,
		annotate: cfg.Annotate == nil || *cfg.Annotate,
		viewer:   env.Viewer,
	}
	if d.title == "" {
		d.title = env.Stream
	}
	if d.viewer == nil {
		d.viewer = NopViewer{}
	}
	d.transform = d.show
	return d
}

func (d *VideoDisplay) show(_ context.Context, pkt *packet.Packet) error {
	gray, err := grayFrame(pkt)
	if err != nil {
		return nil
	}
	if !d.annotate {
		d.viewer.Show(d.stream, d.title, gray)
		return nil
	}

	out := &packet.Frame{
		Width:  gray.Width,
		Height: gray.Height,
		Format: packet.ColorGray,
		Data:   append([]byte(nil), gray.Data...),
	}
	if pupil, ok := packet.Value[packet.Pupil](pkt, packet.FieldPupil); ok && pupil.Confidence > 0 {
		e := pupil.Ellipse
		drawCircle(out, e.Center[0], e.Center[1], math.Max(e.Axes[0], e.Axes[1])/2, 255)
		drawCross(out, e.Center[0], e.Center[1], 4, 255)
	}
	if markers, ok := packet.Value[[]packet.Marker](pkt, packet.FieldCircleMarkers); ok {
		for _, m := range markers {
			drawCircle(out, m.Location[0], m.Location[1], m.Size/2+2, 255)
		}
	}
	if points, ok := packet.Value[[]packet.GazePoint](pkt, packet.FieldGazePoints); ok {
		for _, p := range points {
			x := p.NormPos[0] * float64(out.Width)
			y := (1 - p.NormPos[1]) * float64(out.Height)
			drawCross(out, x, y, 8, 0)
		}
	}
	d.viewer.Show(d.stream, d.title, out)
	return nil
}

func setPixel(f *packet.Frame, x, y int, v byte) {
	if x >= 0 && y >= 0 && x < f.Width && y < f.Height {
		f.Data[y*f.Width+x] = v
	}
}

func drawCross(f *packet.Frame, cx, cy float64, arm int, v byte) {
	x, y := int(math.Round(cx)), int(math.Round(cy))
	for i := -arm; i <= arm; i++ {
		setPixel(f, x+i, y, v)
		setPixel(f, x, y+i, v)
	}
}

func drawCircle(f *packet.Frame, cx, cy, r float64, v byte) {
	if r <= 0 {
		return
	}
	steps := int(2*math.Pi*r) + 8
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		setPixel(f, int(math.Round(cx+r*math.Cos(a))), int(math.Round(cy+r*math.Sin(a))), v)
	}
}
