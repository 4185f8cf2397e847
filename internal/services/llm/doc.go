// Package llm wraps the OpenAI-compatible chat completion API used by the
// mapping and transformation collaborators.
//
// # Entry Points
//
// NewClient: construct a client from config.
// Client.CompleteJSON: send system/user prompts, receive a JSON response
// with token usage.
// Client.HealthCheck: verify the API key and model respond.
// DecodeJSON: parse model output, tolerating code fences and surrounding
// prose.
//
// # Retry Behaviour
//
// Calls retry on HTTP 408/429/5xx and network timeouts with exponential
// backoff (base 1s, max 10s, 3 attempts by default). Context cancellation
// aborts retries immediately.
//
// # Fallback
//
// When the API is unreachable the callers degrade: mapping leaves chunks
// unmapped for a later pass, transformation marks its job failed within the
// task retry budget.
package llm
