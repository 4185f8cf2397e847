// Package preflight verifies the environment before the daemon starts
// work: directory permissions, database integrity, LLM reachability, and
// disk headroom. Checks return results instead of errors so the status
// surfaces can render every outcome, passed or not.
package preflight
