// Package ingest takes source files into the document library. IngestFile
// copies an upload into the data directory with integrity verification,
// registers the document, and get-or-creates its pipeline. ProcessPending
// runs the single-transaction extract-then-chunk path over documents still
// awaiting extraction; the worker loop calls it every tick and the CLI can
// trigger it directly.
package ingest
