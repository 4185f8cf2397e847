// Package chunking splits extracted pages into classified chunks. The
// classifier is cue-based: headings by shape, dialogues by speaker marks,
// vocabulary lists by pair patterns, exercises by instruction verbs,
// everything else prose. Like extraction, the body is a simple replaceable
// default behind a stable contract.
package chunking
