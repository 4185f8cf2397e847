// Package worker runs the cooperative processing loop.
//
// The Scheduler executes one tick at a time, never concurrently. Each tick
// works a fixed sequence: advance processing pipelines, re-scan parked
// pipelines for late mapping confirmations, start pending pipelines, drain
// one deferred work item, run one promotion batch, and sweep raw documents
// awaiting extraction. A productive tick resets the poll interval to its
// baseline and records a checkpoint; idle ticks back the interval off
// multiplicatively and keep a heartbeat trail so monitors can tell an idle
// process from a dead one. A failed tick is logged and checkpointed, never
// fatal: one bad pipeline must not take the process down.
package worker
