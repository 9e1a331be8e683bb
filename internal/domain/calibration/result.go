package calibration

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
)

// Method names reported by computers.
const (
	MethodBinocularPolynomial = "binocular polynomial regression"
	MethodMonocularPolynomial = "monocular polynomial regression"
)

// Result subjects.
const (
	SubjectFailed = "calibration.failed"
	SubjectPlugin = "start_plugin"
)

// Mapper names carried in successful results.
const (
	NameBinocularMapper = "Binocular_Gaze_Mapper"
	NameMonocularMapper = "Monocular_Gaze_Mapper"
)

// DetectionMode is the pupil detection mode the data was collected in.
type DetectionMode string

const (
	Mode2D DetectionMode = "2d"
	Mode3D DetectionMode = "3d"
)

// Context is the fixed input of one computation.
type Context struct {
	Resolution    [2]int        `json:"resolution"`
	Mode          DetectionMode `json:"mode"`
	MinConfidence float64       `json:"min_confidence"`
}

// Computer turns observations into a mapping. A failed calibration is a
// Result with Subject SubjectFailed; the error return is for problems
// reaching the computer at all.
type Computer interface {
	Compute(ctx context.Context, cctx Context, pupils []packet.Pupil, markers []packet.Marker) (string, Result, error)
}

// Params is one polynomial fit: coefficient vectors for x and y over the
// same feature terms. On the wire it is the tuple [x, y, terms].
type Params struct {
	X     []float64
	Y     []float64
	Terms int
}

// MarshalJSON encodes the tuple form.
func (p Params) MarshalJSON() ([]byte, error) {
	return codec.Marshal([]any{p.X, p.Y, p.Terms})
}

// UnmarshalJSON decodes the tuple form.
func (p *Params) UnmarshalJSON(data []byte) error {
	var raw [3]any
	if err := codec.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("params tuple: %w", err)
	}
	x, err := floats(raw[0])
	if err != nil {
		return fmt.Errorf("params x: %w", err)
	}
	y, err := floats(raw[1])
	if err != nil {
		return fmt.Errorf("params y: %w", err)
	}
	n, ok := packet.AsFloat(raw[2])
	if !ok {
		return errors.New("params terms: not a number")
	}
	p.X, p.Y, p.Terms = x, y, int(n)
	return nil
}

func floats(v any) ([]float64, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	out := make([]float64, len(list))
	for i, e := range list {
		f, ok := packet.AsFloat(e)
		if !ok {
			return nil, fmt.Errorf("element %d is %T", i, e)
		}
		out[i] = f
	}
	return out, nil
}

// Clone deep-copies the coefficient vectors.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	return &Params{
		X:     append([]float64(nil), p.X...),
		Y:     append([]float64(nil), p.Y...),
		Terms: p.Terms,
	}
}

// Args holds the fitted parameter sets.
type Args struct {
	Params     *Params `json:"params,omitempty"`
	ParamsEye0 *Params `json:"params_eye0,omitempty"`
	ParamsEye1 *Params `json:"params_eye1,omitempty"`
}

// Result is what a computer returns.
type Result struct {
	Subject string `json:"subject"`
	Name    string `json:"name,omitempty"`
	Args    Args   `json:"args"`
	Reason  string `json:"reason,omitempty"`
}

// Failed reports the failure signal.
func (r Result) Failed() bool {
	return r.Subject == SubjectFailed
}

// Failure builds a failed result.
func Failure(reason string) Result {
	return Result{Subject: SubjectFailed, Reason: reason}
}

// Clone deep-copies the result.
func (r Result) Clone() Result {
	r.Args = Args{
		Params:     r.Args.Params.Clone(),
		ParamsEye0: r.Args.ParamsEye0.Clone(),
		ParamsEye1: r.Args.ParamsEye1.Clone(),
	}
	return r
}

// FixBinocularPolynomial applies the sign correction that aligns binocular
// polynomial results with the image coordinate convention: in each parameter
// set the y vector is negated and its last element incremented by one.
// Other methods and failed results are returned unchanged. The input is not
// modified.
func FixBinocularPolynomial(method string, r Result) Result {
	if method != MethodBinocularPolynomial || r.Failed() {
		return r
	}

	out := r.Clone()
	for _, p := range []*Params{out.Args.Params, out.Args.ParamsEye0, out.Args.ParamsEye1} {
		if p == nil || len(p.Y) == 0 {
			continue
		}
		for i := range p.Y {
			p.Y[i] = -p.Y[i]
		}
		p.Y[len(p.Y)-1]++
	}
	return out
}
