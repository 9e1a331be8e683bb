// Package process implements pipeline steps.
//
// Every step handles the cycle's notifications before it touches the
// packet, so a control message such as "collect_calibration_data" takes
// effect on the same cycle it arrives. Non-blocking steps run their packet
// transform on a bounded worker pool and hand the next step a future; when
// the pool is saturated the input packet is passed on unchanged.
//
// Kinds:
//   - pupil_detector, circle_detector: detectors that broadcast results
//   - gaze_mapper: maps routed eye observations to gaze points
//   - calibration, validation: collect observations and compute a mapping
//   - video_display, video_recorder, motion_recorder: sinks
//   - video_file_syncer: rewinds file playback when a master stream loops
package process
