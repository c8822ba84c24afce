// Package notifications delivers operator alerts through ntfy. When no topic
// is configured, NewService returns a no-op implementation.
package notifications
