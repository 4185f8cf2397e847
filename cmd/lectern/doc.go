// Package main hosts the Lectern CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon, document ingestion, pipeline inspection, mapping and
// review actions, and configuration scaffolding. It centralizes configuration
// resolution and socket discovery so subcommands can focus on user experience
// instead of wiring. Read commands fall back to direct database access when
// the daemon is not running; reviewer actions require the daemon so the
// worker loop can react to them.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
