// Package services holds cross-cutting helpers shared by the pipeline
// collaborators: sentinel error markers with stage-aware wrapping, and
// context annotations that carry pipeline, task, and document identifiers
// into structured logs.
//
// Collaborator implementations live in subpackages (extraction, chunking,
// mapping, transform) and wrap their failures with the markers defined here
// so the orchestrator and worker can classify them without string matching.
package services
