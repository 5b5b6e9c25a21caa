// Package notifications delivers collection run events to ntfy.
//
// The ntfy implementation posts plain-text messages with title, tag and
// priority headers. When no topic is configured, or when an event class is
// switched off in config, a no-op notifier is used so collectors can notify
// unconditionally.
package notifications
