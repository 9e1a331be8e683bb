package packet

import "github.com/GriffinCanCode/gazeflow/internal/shared/codec"

// Status is the flat payload a stream publishes after every cycle. It holds
// at least name, device_uid and timestamp, plus the packet's broadcasts.
type Status map[string]any

// Status keys written by every stream.
const (
	KeyName            = "name"
	KeyDeviceUID       = "device_uid"
	KeyTimestamp       = "timestamp"
	KeySourceTimestamp = "source_timestamp"
	KeyRunning         = "running"
	KeyFPS             = "fps"
	KeyException       = "exception"
	KeyReconnecting    = "reconnecting"
)

// Copy returns a shallow copy.
func (s Status) Copy() Status {
	out := make(Status, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Running reports the running flag.
func (s Status) Running() bool {
	v, _ := s[KeyRunning].(bool)
	return v
}

// Exception returns the crash description, if any.
func (s Status) Exception() (string, bool) {
	v, ok := s[KeyException].(string)
	return v, ok && v != ""
}

// Notification is one message delivered to a stream. Routed notifications
// are keyed by source stream name; operator notifications carry control
// keys such as "collect_calibration_data".
type Notification map[string]any

// Notifications is everything a stream received for one cycle.
type Notifications []Notification

// Operator control keys.
const (
	NotifyCollectCalibration   = "collect_calibration_data"
	NotifyCalculateCalibration = "calculate_calibration"
)

// Source returns the payload routed from the named stream.
func (n Notification) Source(name string) (map[string]any, bool) {
	switch v := n[name].(type) {
	case map[string]any:
		return v, true
	case Status:
		return v, true
	case Notification:
		return v, true
	default:
		return nil, false
	}
}

// Bool returns a boolean control value.
func (n Notification) Bool(key string) (bool, bool) {
	v, ok := n[key].(bool)
	return v, ok
}

// Float returns a numeric value as float64.
func (n Notification) Float(key string) (float64, bool) {
	return AsFloat(n[key])
}

// AsFloat converts the numeric types found in decoded payloads.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

// Decode converts a routed payload to a typed record. Payloads arrive typed
// from in-process streams and as generic maps when injected over the API.
func Decode[T any](v any) (T, bool) {
	var zero T
	switch x := v.(type) {
	case nil:
		return zero, false
	case T:
		return x, true
	case *T:
		if x == nil {
			return zero, false
		}
		return *x, true
	}

	data, err := codec.Marshal(v)
	if err != nil {
		return zero, false
	}
	var out T
	if err := codec.Unmarshal(data, &out); err != nil {
		return zero, false
	}
	return out, true
}
