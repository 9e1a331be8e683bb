// Package manager runs a fixed set of streams, one worker goroutine each,
// and routes broadcast fields between them.
//
// The manager never touches a stream's device or pipeline while it runs.
// It only reads statuses from, and writes notifications to, each stream's
// Link. Routing is driven by Update, which Spin calls on a fixed interval.
package manager
