// Package notifications delivers push notifications through ntfy.
//
// The service exposes a single Publish entry point keyed by event type.
// Review, completion, and error events can be toggled independently in
// configuration, and when no ntfy topic is configured every publish is a
// no-op so callers never need to guard their own notification calls.
package notifications
