package emit

import "log/slog"

// Emitter is the engine's observability seam. Unlike a handler, an
// Emitter never fails the pipeline: a backend that cannot write drops
// the event. Emit must not block the runner
// for more than a best-effort attempt.
type Emitter interface {
	Emit(event PipelineEvent)
	Close() error
}

// CompositeEmitter fans a single event out to every configured backend.
// One backend's failure (panicking, or erroring on Close) never prevents
// the others from receiving the event or being closed.
type CompositeEmitter struct {
	backends []Emitter
	logger   *slog.Logger
}

// NewCompositeEmitter builds a fan-out emitter over backends. A nil
// logger falls back to slog.Default.
func NewCompositeEmitter(logger *slog.Logger, backends ...Emitter) *CompositeEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompositeEmitter{backends: backends, logger: logger}
}

func (c *CompositeEmitter) Emit(event PipelineEvent) {
	for _, b := range c.backends {
		c.emitOne(b, event)
	}
}

func (c *CompositeEmitter) emitOne(b Emitter, event PipelineEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("emitter backend panicked", "error", r, "event_type", event.Type)
		}
	}()
	b.Emit(event)
}

func (c *CompositeEmitter) Close() error {
	var firstErr error
	for _, b := range c.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
