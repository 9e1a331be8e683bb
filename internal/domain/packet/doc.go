// Package packet defines the per-cycle data carrier that flows through a
// stream's pipeline, the value records steps attach to it, and the flat
// status/notification payloads exchanged between streams and the manager.
//
// Well-known payload fields have named constants (FieldFrame, FieldPupil,
// ...); steps may attach any other name as an extension field. A field may
// hold a deferred value produced by a worker; Get blocks for it up to the
// packet timeout and reports absence on expiry.
//
// Only fields listed in the packet's broadcast set leave the stream: they
// are copied into the status the manager routes to subscribers.
package packet
