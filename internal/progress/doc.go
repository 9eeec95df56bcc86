// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that notebook operations use to report lifecycle milestones. It
// batches events on a background goroutine and fans them out to pluggable
// sinks such as Prometheus metrics or structured logs.
//
// These events are observability only. The progress records that pollers read
// live in the operation package.
package progress
