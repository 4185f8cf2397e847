// Package extraction turns source documents into per-page text. Plaintext
// and markdown files page on form feeds or blank-line runs; PDFs go through
// pdfcpu with a minimal text-operator decode. The bodies here are simple
// replaceable defaults; the contract is Extract returning ordered pages or
// an extraction-classified error that the pipeline treats as terminal.
package extraction
