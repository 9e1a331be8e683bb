// Package async provides deferred values and a bounded worker pool for
// pipeline steps that run off the stream goroutine.
//
// A Future is either ready (holding a value) or pending (completed later by
// a pool worker). Consumers resolve it with an explicit timeout:
//
//	fut := async.SubmitOr(pool, detect, pkt)
//	pkt, err := fut.Resolve(500 * time.Millisecond)
//
// Submission never blocks. When the pool queue is full, Submit returns
// ErrQueueFull and SubmitOr hands back a ready future holding the fallback.
package async
