package calibration

import (
	"errors"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// ErrNoMapping is returned when a result cannot drive a mapper.
var ErrNoMapping = errors.New("calibration result has no usable mapping")

// Mapper maps a pair of eye observations to a gaze point. Either pupil may
// be nil; ok is false when no mapping applies to what was given.
type Mapper interface {
	Map(eye0, eye1 *packet.Pupil) (packet.GazePoint, bool)
}

// PolynomialMapper evaluates corrected polynomial parameters. Binocular
// parameters are used when both eyes are present, per-eye parameters when
// only one is.
type PolynomialMapper struct {
	binocular *Params
	eye       [2]*Params
}

// NewMapper builds a mapper from a corrected result.
func NewMapper(r Result) (*PolynomialMapper, error) {
	if r.Failed() {
		return nil, ErrNoMapping
	}

	m := &PolynomialMapper{eye: [2]*Params{r.Args.ParamsEye0, r.Args.ParamsEye1}}
	if r.Args.Params != nil && r.Args.Params.Terms == binocularTerms {
		m.binocular = r.Args.Params
	}
	if m.binocular == nil && m.eye[0] == nil && m.eye[1] == nil {
		return nil, ErrNoMapping
	}
	return m, nil
}

// Map implements Mapper.
func (m *PolynomialMapper) Map(eye0, eye1 *packet.Pupil) (packet.GazePoint, bool) {
	switch {
	case eye0 != nil && eye1 != nil && m.binocular != nil:
		pos := evaluate(m.binocular, binoFeatures(eye0.NormPos, eye1.NormPos))
		return packet.GazePoint{
			Timestamp:      (eye0.Timestamp + eye1.Timestamp) / 2,
			NormPos:        pos,
			Confidence:     (eye0.Confidence + eye1.Confidence) / 2,
			BaseTimestamps: []float64{eye0.Timestamp, eye1.Timestamp},
		}, true
	case eye0 != nil && m.eye[0] != nil:
		return m.mono(m.eye[0], eye0), true
	case eye1 != nil && m.eye[1] != nil:
		return m.mono(m.eye[1], eye1), true
	default:
		return packet.GazePoint{}, false
	}
}

func (m *PolynomialMapper) mono(p *Params, pu *packet.Pupil) packet.GazePoint {
	return packet.GazePoint{
		Timestamp:      pu.Timestamp,
		NormPos:        evaluate(p, monoFeatures(pu.NormPos)),
		Confidence:     pu.Confidence,
		BaseTimestamps: []float64{pu.Timestamp},
	}
}
