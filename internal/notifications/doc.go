// Package notifications publishes story pipeline events to an ntfy topic.
// When no topic is configured the service is a silent noop, so callers never
// branch on whether notifications are enabled.
package notifications
