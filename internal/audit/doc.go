// Package audit provides append-only audit logging for authentication,
// token, and credential operations.
//
// Events are written as JSON lines to a configurable output (file,
// stdout, stderr). Writes are serialized and best-effort: a failed
// write is reported on a fallback logger but never surfaces to the
// operation that produced the event. Sensitive detail keys are
// redacted before writing.
//
// The AtomicLogger wrapper allows the active logger to be swapped at
// runtime (for example on configuration reload) without re-wiring
// consumers.
package audit
