// Package orchestrator drives document pipelines through their task graph.
//
// ProcessPipeline advances one pipeline by at most one task per call: it
// first creates transform tasks for any newly confirmed mappings (the
// reopening path), then dispatches the oldest eligible task to the matching
// collaborator, and finally decides completion. A pipeline only completes
// when every task is done, no confirmed mapping is still untransformed, and
// every learning item spawned under it has been approved by review; until
// then it stays open so later human action is picked up.
//
// Dispatch errors mark the task failed, then the pipeline, and are returned
// to the caller for logging. The worker loop treats them as handled.
package orchestrator
