// Package promotion advances candidates through the quality gates into the
// validated pool. Each batch selects the oldest candidates without a
// validated row, runs the configured gates in tier order, and either
// promotes the candidate and queues it for review or records the gate
// failures and leaves the candidate for a later attempt.
package promotion
