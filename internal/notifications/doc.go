// Package notifications delivers pipeline events to recipients.
//
// Two transports exist: ntfy (HTTP push to the configured topic) and a Kafka
// publisher that writes one JSON message per event to the events topic.
// NewService returns whichever are configured behind a single Service, or a
// no-op when neither is. Delivery is fire-and-forget from the pipelines'
// point of view: errors are returned for logging and never retried.
package notifications
