/*
Package observability provides lifecycle hook helpers for the triage engine.

Compose merges several domain.LifecycleHooks values (for example the
Prometheus hooks and an audit logger) into one, and LoggingHooks turns every
engine event into a structured log line.
*/
package observability
