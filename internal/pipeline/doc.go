// Package pipeline persists per-document pipelines, their task dependency
// graph, and worker checkpoints in SQLite.
//
// The Store manages pipeline rows, the single-predecessor task DAG, the
// derived task counters, and the checkpoint trail the worker writes for
// restart continuity. Task and pipeline state here is authoritative;
// checkpoints are observability only and are never consulted to skip work.
//
// Treat this package as the single source of truth for pipeline semantics;
// when you add new statuses or task types, update the migration and the enums
// here together.
package pipeline
