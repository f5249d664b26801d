// Package notifications publishes daemon alerts to an ntfy topic.
//
// NewService returns a no-op notifier when no topic is configured, so callers
// publish unconditionally. Delivery is best-effort: the supervisor logs a
// failed publish and carries on.
package notifications
