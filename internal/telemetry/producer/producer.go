// Package producer publishes delivery events to a message broker.
package producer

import "notifyhub/backend/internal/telemetry"

// Producer emits delivery events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	telemetry.EventEmitter
	// Close flushes and releases the underlying writer. Safe to call if already closed.
	Close() error
}
