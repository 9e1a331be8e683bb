// Package recording implements the append-only sinks used by recorder steps
// and the readers used for playback and offline analysis.
//
// A video recording is a zstd-compressed frame container (<name>.frames.zst)
// with a timestamp array (<name>_timestamps.json) and an optional source
// timestamp array (<name>_source_timestamps.json) written on Close. Other
// records (motion, gaze) are zstd-compressed JSON lines (<name>.jsonl.zst).
package recording
