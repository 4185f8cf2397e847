// Package mapping proposes topic assignments for document chunks. The
// model sees chunk digests plus the language's topic catalog and answers
// with per-chunk assignments; accepted ones become pending topic mappings
// that a human confirms or rejects later.
package mapping
