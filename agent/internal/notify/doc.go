// Package notify posts spool events to webhook targets.
//
// The driver raises an Event when the spool drops an undelivered capture
// (capacity eviction, retention expiry) or fails to write one. Each target is
// a Slack incoming webhook, a Teams connector or a plain HTTP endpoint that
// receives the event as JSON. Repeat events of the same kind are suppressed
// for the configured cooldown so a long outage produces one message, not one
// per capture.
//
// Delivery is asynchronous and best effort: failures are logged and never
// reach the pipeline.
package notify
