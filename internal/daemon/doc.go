// Package daemon coordinates the long-running lectern process and its
// system integration points.
//
// It wires the database, worker scheduler, ingest service, and inbox
// monitor into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon exposes the query and action surface the
// IPC server serves: pipeline listings, mapping confirmation, review
// decisions, manual ingestion, and checkpoint inspection.
//
// Keep coordination logic here: pipeline advancement lives in the
// orchestrator and worker packages while the daemon focuses on startup,
// shutdown, and aggregation.
package daemon
