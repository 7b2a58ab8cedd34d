package emit

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter projects the event stream onto an OpenTelemetry trace: one
// span covering the whole pipeline run, and one child span per node
// between its started and completed/failed events. Every other event
// type is recorded as a span event on whichever span is active.
//
// Node span lifetimes are tracked in a plain map rather than threaded
// through PipelineEvent, because backends must not assume anything
// about what data a handler chooses to attach.
type OTelEmitter struct {
	tracer trace.Tracer

	mu          sync.Mutex
	pipelineCtx context.Context
	pipelineEnd trace.Span
	nodeSpans   map[string]nodeSpan
}

type nodeSpan struct {
	ctx context.Context
	end trace.Span
}

// NewOTelEmitter builds a backend using tracer, starting no spans until
// the first event arrives.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer, nodeSpans: make(map[string]nodeSpan)}
}

func (e *OTelEmitter) Emit(event PipelineEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch event.Type {
	case EventPipelineStarted, EventPipelineResumed:
		e.startPipelineSpanLocked(event)
	case EventPipelineCompleted:
		e.endPipelineSpanLocked(codes.Ok, "")
	case EventPipelineFailed:
		e.endPipelineSpanLocked(codes.Error, stringField(event.Data, "error"))
	case EventNodeStarted:
		e.startNodeSpanLocked(event)
	case EventNodeCompleted:
		e.endNodeSpanLocked(event, codes.Ok, "")
	case EventNodeFailed:
		e.endNodeSpanLocked(event, codes.Error, stringField(event.Data, "error"))
	default:
		e.recordSpanEventLocked(event)
	}
}

func (e *OTelEmitter) startPipelineSpanLocked(event PipelineEvent) {
	spanID := event.SpanID
	if spanID == "" {
		spanID = uuid.NewString()
	}
	ctx, span := e.tracer.Start(context.Background(), "pipeline.run",
		trace.WithAttributes(
			attribute.String("pipeline.id", event.PipelineID),
			attribute.String("pipeline.correlation_id", spanID),
		))
	e.pipelineCtx = ctx
	e.pipelineEnd = span
}

func (e *OTelEmitter) endPipelineSpanLocked(code codes.Code, errMsg string) {
	if e.pipelineEnd == nil {
		return
	}
	if errMsg != "" {
		e.pipelineEnd.SetStatus(code, errMsg)
	} else {
		e.pipelineEnd.SetStatus(code, "")
	}
	e.pipelineEnd.End()
	e.pipelineEnd = nil
	e.pipelineCtx = nil
}

func (e *OTelEmitter) startNodeSpanLocked(event PipelineEvent) {
	parent := e.pipelineCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, span := e.tracer.Start(parent, "node."+event.NodeID,
		trace.WithAttributes(attribute.String("node.id", event.NodeID)))
	e.nodeSpans[event.NodeID] = nodeSpan{ctx: ctx, end: span}
}

func (e *OTelEmitter) endNodeSpanLocked(event PipelineEvent, code codes.Code, errMsg string) {
	ns, ok := e.nodeSpans[event.NodeID]
	if !ok {
		return
	}
	ns.end.SetStatus(code, errMsg)
	ns.end.End()
	delete(e.nodeSpans, event.NodeID)
}

func (e *OTelEmitter) recordSpanEventLocked(event PipelineEvent) {
	target := e.pipelineEnd
	if ns, ok := e.nodeSpans[event.NodeID]; ok {
		target = ns.end
	}
	if target == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(event.Data))
	for k, v := range event.Data {
		attrs = append(attrs, attribute.String(k, stringifyAny(v)))
	}
	target.AddEvent(string(event.Type), trace.WithAttributes(attrs...))
}

func (e *OTelEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ns := range e.nodeSpans {
		ns.end.End()
		delete(e.nodeSpans, id)
	}
	if e.pipelineEnd != nil {
		e.pipelineEnd.End()
		e.pipelineEnd = nil
	}
	return nil
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return s
}

func stringifyAny(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
