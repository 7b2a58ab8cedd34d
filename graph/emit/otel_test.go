package emit

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTelEmitterStartsAndEndsSpansForPipelineAndNodes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	tracer := tp.Tracer("pipeline-engine-test")
	e := NewOTelEmitter(tracer)

	e.Emit(PipelineEvent{Type: EventPipelineStarted, PipelineID: "p1"})
	e.Emit(PipelineEvent{Type: EventNodeStarted, PipelineID: "p1", NodeID: "n1"})
	e.Emit(PipelineEvent{Type: EventNodeCompleted, PipelineID: "p1", NodeID: "n1"})
	e.Emit(PipelineEvent{Type: EventPipelineCompleted, PipelineID: "p1"})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans (node + pipeline), got %d", len(spans))
	}
	if spans[0].Name() != "node.n1" {
		t.Fatalf("expected node span to end before pipeline span, got %q first", spans[0].Name())
	}
	if spans[1].Name() != "pipeline.run" {
		t.Fatalf("expected pipeline span to end last, got %q", spans[1].Name())
	}
}

func TestOTelEmitterClosePendingSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	e := NewOTelEmitter(tp.Tracer("pipeline-engine-test"))
	e.Emit(PipelineEvent{Type: EventPipelineStarted, PipelineID: "p1"})
	e.Emit(PipelineEvent{Type: EventNodeStarted, PipelineID: "p1", NodeID: "n1"})

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(recorder.Ended()) != 2 {
		t.Fatalf("expected Close to end both dangling spans, got %d", len(recorder.Ended()))
	}
}
