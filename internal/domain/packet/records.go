package packet

// Ellipse is a fitted ellipse in pixel coordinates.
type Ellipse struct {
	Center [2]float64 `json:"center"`
	Axes   [2]float64 `json:"axes"`
	Angle  float64    `json:"angle"`
}

// Pupil is one pupil observation from an eye camera.
type Pupil struct {
	Timestamp  float64    `json:"timestamp"`
	EyeID      int        `json:"id"`
	Confidence float64    `json:"confidence"`
	Diameter   float64    `json:"diameter"`
	Ellipse    Ellipse    `json:"ellipse"`
	NormPos    [2]float64 `json:"norm_pos"`
	Method     string     `json:"method"`
}

// Marker is one detected calibration marker in a world frame.
type Marker struct {
	Timestamp float64    `json:"timestamp"`
	Location  [2]float64 `json:"location"`
	NormPos   [2]float64 `json:"norm_pos"`
	Size      float64    `json:"size"`
}

// GazePoint is a mapped gaze position in normalized world coordinates.
type GazePoint struct {
	Timestamp      float64    `json:"timestamp"`
	NormPos        [2]float64 `json:"norm_pos"`
	Confidence     float64    `json:"confidence"`
	BaseTimestamps []float64  `json:"base_timestamps"`
}

// Motion is one odometry sample.
type Motion struct {
	Timestamp       float64    `json:"timestamp"`
	Position        [3]float64 `json:"position"`
	Orientation     [4]float64 `json:"orientation"`
	LinearVelocity  [3]float64 `json:"linear_velocity"`
	AngularVelocity [3]float64 `json:"angular_velocity"`
}
