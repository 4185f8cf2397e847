// Package textutil provides text processing utilities for dedup-key
// normalization, similarity fingerprinting, and filename sanitization.
//
// NormalizeKey is the canonical form applied to every lifecycle dedup key
// before storage or comparison; fingerprints back the near-duplicate quality
// gate with cosine similarity over term-frequency vectors.
package textutil
