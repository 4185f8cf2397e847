// Package lifecycle persists the draft, candidate, validated, approved, and
// rejected stages of learning content, plus the review queue, transformation
// job audit trail, gate failure records, and the append-only event log.
//
// The store is the sole deduplication authority: every stage boundary checks
// the (topic, data type, dedup key) tuple before writing, and a tuple once
// rejected never re-enters the chain for that topic. The event log is the
// system of record for what happened and when; it is only ever appended to.
package lifecycle
