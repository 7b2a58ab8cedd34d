package emit

// NullEmitter discards every event. Useful as the Runner's default when
// no backend is configured, and in tests that don't care about
// observability output.
type NullEmitter struct{}

func (NullEmitter) Emit(PipelineEvent) {}

func (NullEmitter) Close() error { return nil }
