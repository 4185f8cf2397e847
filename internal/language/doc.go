// Package language provides unified language code normalization for the
// curriculum catalog. All conversions between ISO 639 codes, full word forms,
// and display names are consolidated here so ingest, mapping, and the CLI
// resolve languages identically.
package language
