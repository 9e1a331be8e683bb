package calibration

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

const (
	monocularTerms = 7
	binocularTerms = 13

	// DefaultMaxDispersion bounds the timestamp gap between a marker and the
	// pupil paired with it.
	DefaultMaxDispersion = 1.0 / 15.0

	ridge = 1e-6
)

// Polynomial fits polynomial gaze mappings in-process.
type Polynomial struct {
	// MaxDispersion is the pairing window in seconds.
	MaxDispersion float64
}

// NewPolynomial returns a computer with the default pairing window.
func NewPolynomial() *Polynomial {
	return &Polynomial{MaxDispersion: DefaultMaxDispersion}
}

// Compute pairs each marker with the closest pupil of each eye and fits a
// binocular mapping when both eyes have enough pairs, otherwise a monocular
// one. Binocular fits target the y-up convention and need
// FixBinocularPolynomial before use.
func (p *Polynomial) Compute(ctx context.Context, cctx Context, pupils []packet.Pupil, markers []packet.Marker) (string, Result, error) {
	if err := ctx.Err(); err != nil {
		return "", Result{}, err
	}
	if cctx.Mode == Mode3D {
		return "", Failure("3d calibration is not supported by the polynomial computer"), nil
	}

	window := p.MaxDispersion
	if window <= 0 {
		window = DefaultMaxDispersion
	}

	eyes := [2][]packet.Pupil{}
	for _, pu := range pupils {
		if pu.Confidence < cctx.MinConfidence || pu.EyeID < 0 || pu.EyeID > 1 {
			continue
		}
		eyes[pu.EyeID] = append(eyes[pu.EyeID], pu)
	}
	for i := range eyes {
		sort.Slice(eyes[i], func(a, b int) bool { return eyes[i][a].Timestamp < eyes[i][b].Timestamp })
	}

	var bino, mono0, mono1 []sample
	for _, m := range markers {
		p0, ok0 := closest(eyes[0], m.Timestamp, window)
		p1, ok1 := closest(eyes[1], m.Timestamp, window)
		if ok0 {
			mono0 = append(mono0, sample{features: monoFeatures(p0.NormPos), target: m.NormPos})
		}
		if ok1 {
			mono1 = append(mono1, sample{features: monoFeatures(p1.NormPos), target: m.NormPos})
		}
		if ok0 && ok1 {
			bino = append(bino, sample{
				features: binoFeatures(p0.NormPos, p1.NormPos),
				target:   [2]float64{m.NormPos[0], 1 - m.NormPos[1]},
			})
		}
	}

	if len(bino) >= binocularTerms && len(mono0) >= monocularTerms && len(mono1) >= monocularTerms {
		params, err := fit(bino, binocularTerms)
		if err != nil {
			return "", Failure(err.Error()), nil
		}
		// Per-eye fits share the y-up convention of the combined fit.
		eye0, err := fit(flipTargets(mono0), monocularTerms)
		if err != nil {
			return "", Failure(err.Error()), nil
		}
		eye1, err := fit(flipTargets(mono1), monocularTerms)
		if err != nil {
			return "", Failure(err.Error()), nil
		}
		return MethodBinocularPolynomial, Result{
			Subject: SubjectPlugin,
			Name:    NameBinocularMapper,
			Args:    Args{Params: params, ParamsEye0: eye0, ParamsEye1: eye1},
		}, nil
	}

	for eye, samples := range [][]sample{mono0, mono1} {
		if len(samples) < monocularTerms {
			continue
		}
		params, err := fit(samples, monocularTerms)
		if err != nil {
			return "", Failure(err.Error()), nil
		}
		args := Args{Params: params}
		if eye == 0 {
			args.ParamsEye0 = params.Clone()
		} else {
			args.ParamsEye1 = params.Clone()
		}
		return MethodMonocularPolynomial, Result{Subject: SubjectPlugin, Name: NameMonocularMapper, Args: args}, nil
	}

	return "", Failure("not enough ref point or pupil data available for calibration"), nil
}

type sample struct {
	features []float64
	target   [2]float64
}

func flipTargets(in []sample) []sample {
	out := make([]sample, len(in))
	for i, s := range in {
		out[i] = sample{features: s.features, target: [2]float64{s.target[0], 1 - s.target[1]}}
	}
	return out
}

// closest finds the pupil nearest ts within window. pupils must be sorted.
func closest(pupils []packet.Pupil, ts, window float64) (packet.Pupil, bool) {
	if len(pupils) == 0 {
		return packet.Pupil{}, false
	}
	i := sort.Search(len(pupils), func(i int) bool { return pupils[i].Timestamp >= ts })

	best, bestDT := -1, math.Inf(1)
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(pupils) {
			continue
		}
		if dt := math.Abs(pupils[j].Timestamp - ts); dt < bestDT {
			best, bestDT = j, dt
		}
	}
	if best < 0 || bestDT > window {
		return packet.Pupil{}, false
	}
	return pupils[best], true
}

func monoFeatures(pos [2]float64) []float64 {
	x, y := pos[0], pos[1]
	return []float64{x, y, x * y, x * x, y * y, x * x * y * y, 1}
}

func binoFeatures(p0, p1 [2]float64) []float64 {
	x0, y0, x1, y1 := p0[0], p0[1], p1[0], p1[1]
	return []float64{
		x0, y0, x1, y1,
		x0 * y0, x1 * y1,
		x0 * x0, y0 * y0, x1 * x1, y1 * y1,
		x0 * x0 * y0 * y0, x1 * x1 * y1 * y1,
		1,
	}
}

// fit solves the ridge-regularized normal equations for both coordinates.
func fit(samples []sample, terms int) (*Params, error) {
	n := len(samples)
	a := mat.NewDense(n, terms, nil)
	bx := mat.NewVecDense(n, nil)
	by := mat.NewVecDense(n, nil)
	for i, s := range samples {
		a.SetRow(i, s.features)
		bx.SetVec(i, s.target[0])
		by.SetVec(i, s.target[1])
	}

	var ata mat.SymDense
	ata.SymOuterK(1, a.T())
	for i := 0; i < terms; i++ {
		ata.SetSym(i, i, ata.At(i, i)+ridge)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&ata); !ok {
		return nil, fmt.Errorf("calibration data is degenerate")
	}

	solve := func(b *mat.VecDense) ([]float64, error) {
		var atb, c mat.VecDense
		atb.MulVec(a.T(), b)
		if err := chol.SolveVecTo(&c, &atb); err != nil {
			return nil, fmt.Errorf("solve calibration: %w", err)
		}
		return mat.Col(nil, 0, &c), nil
	}

	cx, err := solve(bx)
	if err != nil {
		return nil, err
	}
	cy, err := solve(by)
	if err != nil {
		return nil, err
	}
	return &Params{X: cx, Y: cy, Terms: terms}, nil
}

// evaluate applies coefficients to features.
func evaluate(p *Params, features []float64) [2]float64 {
	return [2]float64{dot(p.X, features), dot(p.Y, features)}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		if i < len(b) {
			s += a[i] * b[i]
		}
	}
	return s
}
