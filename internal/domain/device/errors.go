package device

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected indicates the requested hardware is absent.
	ErrNotConnected = errors.New("device not connected")

	// ErrIllegalSetting indicates a configuration value the device rejected.
	ErrIllegalSetting = errors.New("illegal device setting")

	// ErrUnknownKind is returned for tags outside the closed kind set.
	ErrUnknownKind = errors.New("unknown device kind")

	// ErrUnsupportedKind is returned for known driver kinds this build
	// cannot construct.
	ErrUnsupportedKind = errors.New("device kind not supported in this build")

	// ErrNotStarted is returned by Read before Start.
	ErrNotStarted = errors.New("device not started")
)

// NotConnectedError carries the uid of the missing device.
type NotConnectedError struct {
	UID string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("device %s not connected", e.UID)
}

func (e *NotConnectedError) Is(target error) bool {
	return target == ErrNotConnected
}

// IllegalSettingError names the rejected setting.
type IllegalSettingError struct {
	Setting string
	Value   any
}

func (e *IllegalSettingError) Error() string {
	return fmt.Sprintf("illegal value %v for setting %s", e.Value, e.Setting)
}

func (e *IllegalSettingError) Is(target error) bool {
	return target == ErrIllegalSetting
}
