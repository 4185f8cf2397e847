// Package transform turns confirmed chunk-topic mappings into draft
// learning items. Each mapping is sent to the chat model with a prompt
// chosen by the chunk's type, the JSON reply is validated against that
// data type's schema, and the surviving items enter the lifecycle store
// as drafts. Every attempt leaves a transformation job row with model
// usage and duration for audit.
package transform
