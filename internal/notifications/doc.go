// Package notifications announces finished pipeline runs.
//
// The default implementation publishes to the ntfy topic configured under
// [notifications] and degrades to a no-op when no topic is set. Failures are
// always announced; successful runs only when notify_success is enabled.
package notifications
