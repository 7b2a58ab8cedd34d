package emit

// SignalWriter is the minimal contract the filesystem signal-file
// protocol exposes to the event bus — satisfied by
// (*signal.Bridge).WriteSignal, kept as an interface here so emit never
// imports the signal package (it would be the only leaf importing a
// leaf, an unnecessary coupling).
type SignalWriter interface {
	WriteSignal(signalType, source, target string, payload map[string]any) error
}

// SignalBridgeEmitter translates exactly four event cases into filesystem
// signal files, the rendezvous mechanism an external orchestrator polls
// instead of tailing the JSONL log: pipeline.completed, pipeline.failed,
// node.failed (only when its data carries goal_gate=true), and
// loop.detected. Every other event is ignored — the signal channel is
// for coarse orchestrator wake-ups, not a full event mirror.
type SignalBridgeEmitter struct {
	writer SignalWriter
	source string
}

// NewSignalBridgeEmitter builds a bridge that writes signals as source.
func NewSignalBridgeEmitter(writer SignalWriter, source string) *SignalBridgeEmitter {
	return &SignalBridgeEmitter{writer: writer, source: source}
}

func (e *SignalBridgeEmitter) Emit(event PipelineEvent) {
	var signalType string
	switch event.Type {
	case EventPipelineCompleted:
		signalType = "NODE_COMPLETE"
	case EventPipelineFailed:
		signalType = "ORCHESTRATOR_CRASHED"
	case EventNodeFailed:
		if goalGate, _ := event.Data["goal_gate"].(bool); !goalGate {
			return
		}
		signalType = "VIOLATION"
	case EventLoopDetected:
		signalType = "ORCHESTRATOR_STUCK"
	default:
		return
	}
	_ = e.writer.WriteSignal(signalType, e.source, event.PipelineID, event.Data)
}

func (e *SignalBridgeEmitter) Close() error { return nil }
