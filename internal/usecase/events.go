// Package usecase contains application business logic.
package usecase

import (
	"go.uber.org/zap"

	"focusguard/internal/domain"
)

// DefaultEventBuffer is the outbound event channel capacity.
const DefaultEventBuffer = 64

// Emitter is the outbound event stream. Publishing never blocks: when the
// buffer is full the event is dropped, so enforcement never stalls on a
// slow listener.
type Emitter struct {
	ch     chan domain.Event
	logger *zap.Logger
}

// NewEmitter creates an emitter with the given buffer capacity.
func NewEmitter(buffer int, logger *zap.Logger) *Emitter {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Emitter{
		ch:     make(chan domain.Event, buffer),
		logger: logger,
	}
}

// Publish enqueues an event, dropping it when the buffer is full.
func (e *Emitter) Publish(ev domain.Event) {
	select {
	case e.ch <- ev:
	default:
		e.logger.Debug("event dropped, buffer full",
			zap.String("kind", string(ev.Kind)))
	}
}

// Events returns the receive side of the stream.
func (e *Emitter) Events() <-chan domain.Event {
	return e.ch
}
