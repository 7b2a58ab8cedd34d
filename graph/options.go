package graph

import "github.com/attractorhq/pipeline-engine/graph/emit"

// RunnerOption configures a Runner at construction time.
type RunnerOption func(*runnerConfig)

type runnerConfig struct {
	maxNodeVisits  int
	pipelinesDir   string
	dispatch       HandlerFunc
	conditionEval  ConditionEvaluator
	initialContext map[string]any
	emitter        emit.Emitter
	auditWriter    AuditWriter
	metrics        *Metrics
}

const defaultMaxNodeVisits = 10

func newRunnerConfig() *runnerConfig {
	return &runnerConfig{
		maxNodeVisits: defaultMaxNodeVisits,
		emitter:       emit.NullEmitter{},
		auditWriter:   NullAuditWriter{},
	}
}

// WithMaxNodeVisits overrides the default loop-detection bound of 10
// visits to the same node within one run.
func WithMaxNodeVisits(n int) RunnerOption {
	return func(c *runnerConfig) { c.maxNodeVisits = n }
}

// WithPipelinesDir sets the directory fresh runs create their
// timestamped run directory under. Required unless resuming an existing
// run directory directly.
func WithPipelinesDir(dir string) RunnerOption {
	return func(c *runnerConfig) { c.pipelinesDir = dir }
}

// WithDispatch supplies the fully composed handler callable the Runner
// invokes for every node visit — typically
// middleware.Chain(...)(registry.AsHandlerFunc()), built by the caller
// so the core graph package never has to import graph/middleware or
// graph/handler.
func WithDispatch(dispatch HandlerFunc) RunnerOption {
	return func(c *runnerConfig) { c.dispatch = dispatch }
}

// WithConditionEvaluator overrides the edge selector's condition
// grammar. Defaults to StubConditionEvaluator.
func WithConditionEvaluator(eval ConditionEvaluator) RunnerOption {
	return func(c *runnerConfig) { c.conditionEval = eval }
}

// WithInitialContext seeds the PipelineContext before any persisted
// checkpoint context is layered on top of it.
func WithInitialContext(values map[string]any) RunnerOption {
	return func(c *runnerConfig) { c.initialContext = values }
}

// WithEmitter sets the event bus backend. Defaults to emit.NullEmitter.
func WithEmitter(e emit.Emitter) RunnerOption {
	return func(c *runnerConfig) { c.emitter = e }
}

// WithAuditWriter records an AuditWriter in the Runner's configuration.
// Defaults to NullAuditWriter. The Runner itself writes no audit
// entries: the audit middleware receives its writer through
// middleware.Audit, not through this option.
func WithAuditWriter(w AuditWriter) RunnerOption {
	return func(c *runnerConfig) { c.auditWriter = w }
}

// WithMetrics attaches a Prometheus metrics collector. Every Metrics
// method tolerates a nil receiver, so this option may be omitted
// entirely.
func WithMetrics(m *Metrics) RunnerOption {
	return func(c *runnerConfig) { c.metrics = m }
}
