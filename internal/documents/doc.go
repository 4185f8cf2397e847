// Package documents persists source documents, their extracted pages and
// chunks, the topic catalog with its CEFR levels, and chunk-to-topic
// mappings awaiting human confirmation.
//
// SaveExtraction is the one multi-table write path: pages and chunks land in
// a single transaction so a failed extraction never leaves partial text
// behind, with a best-effort cleanup sweep and an error status persisted
// outside the transaction when it does fail.
package documents
