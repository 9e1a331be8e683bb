// Package calibration computes gaze-mapping functions from paired pupil and
// marker observations, applies the compatibility correction for binocular
// polynomial results, persists calibration records and evaluates mappers.
//
// A Computer is the external collaborator the calibration step calls. Two
// are provided: Polynomial fits the mapping in-process with least squares,
// Remote posts the observations to a calibration service. Both report
// failure through Result.Subject == SubjectFailed rather than an error;
// errors are reserved for transport and cancellation problems.
package calibration
