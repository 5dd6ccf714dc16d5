// Package pipeline defines the core data model shared by every stage of the
// orchestrator: job specifications produced by matrix expansion, the steps they
// carry, and the immutable results the scheduler aggregates.
//
// Nothing in this package performs work. Types here are either immutable once
// constructed (JobSpec, JobResult) or plain value types, so they can cross
// goroutine boundaries without locking.
package pipeline
