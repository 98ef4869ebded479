package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long the server waits after draining deliveries before shutting
// down OTel providers, so in-flight async emits can finish. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with its own timeout so the caller is never blocked and request
// cancellation does not abort the emit. emitter and event may be nil.
func EmitAsync(emitter EventEmitter, log *zap.Logger, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil && log != nil {
			log.Warn("telemetry emit failed", zap.String("event_type", event.Type), zap.Error(err))
		}
	}()
}
