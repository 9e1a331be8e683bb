// Package device defines the capability contract streams acquire data
// through, the device error kinds, and the built-in device kinds.
//
// Hardware drivers (UVC, FLIR, RealSense) live outside this module; their
// kind tags are recognized so configurations validate, but constructing
// one fails with ErrUnsupportedKind.
package device
