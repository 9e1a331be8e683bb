// Package stream runs one device and its pipeline as an independent worker.
//
// A stream starts its device, then its pipeline, and loops: drain
// notifications (operator commands first), let steps react before the read,
// acquire a packet, flush it through the pipeline, update the running frame
// rate and publish a status. A crash ends the loop with one final status
// carrying "exception"; the stream is not restarted.
package stream
