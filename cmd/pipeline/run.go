package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"gopkg.in/yaml.v3"

	"github.com/attractorhq/pipeline-engine/graph"
	"github.com/attractorhq/pipeline-engine/graph/audit"
	"github.com/attractorhq/pipeline-engine/graph/dotgraph"
	"github.com/attractorhq/pipeline-engine/graph/emit"
	"github.com/attractorhq/pipeline-engine/graph/handler"
	"github.com/attractorhq/pipeline-engine/graph/middleware"
	"github.com/attractorhq/pipeline-engine/graph/signal"
	"github.com/attractorhq/pipeline-engine/graph/worker"
)

const (
	envHandlerTimeout     = "ATTRACTOR_HANDLER_TIMEOUT"
	envSignalPollInterval = "ATTRACTOR_SIGNAL_POLL_INTERVAL"
	envHumanGateTimeout   = "ATTRACTOR_HUMAN_GATE_TIMEOUT"
	envAnthropicModel     = "ANTHROPIC_MODEL"
)

func newRunCmd() *cobra.Command {
	var resumeRunDir string
	var maxNodeVisits int
	var contextFile string
	var pipelinesDir string

	cmd := &cobra.Command{
		Use:   "run <dot-file>",
		Short: "Run a DOT-graph pipeline to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, runOptions{
				dotPath:       args[0],
				resumeRunDir:  resumeRunDir,
				maxNodeVisits: maxNodeVisits,
				contextFile:   contextFile,
				pipelinesDir:  pipelinesDir,
			})
		},
	}

	cmd.Flags().StringVar(&resumeRunDir, "resume", "", "Resume an existing run directory instead of starting fresh")
	cmd.Flags().IntVar(&maxNodeVisits, "max-node-visits", 10, "Loop-detection bound: max visits to one node within a run")
	cmd.Flags().StringVar(&contextFile, "context", "", "YAML file seeding the initial pipeline context")
	cmd.Flags().StringVar(&pipelinesDir, "pipelines-dir", "./pipelines", "Directory fresh runs create their timestamped run directory under")

	return cmd
}

type runOptions struct {
	dotPath       string
	resumeRunDir  string
	maxNodeVisits int
	contextFile   string
	pipelinesDir  string
}

func runPipeline(cmd *cobra.Command, opts runOptions) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	g, err := dotgraph.ParseFile(opts.dotPath)
	if err != nil {
		return fmt.Errorf("parse dot file: %w", err)
	}

	initialContext, err := loadContextFile(opts.contextFile)
	if err != nil {
		return fmt.Errorf("load context file: %w", err)
	}

	runDir := opts.resumeRunDir
	pipelineID := pipelineIDFor(opts)
	if runDir == "" {
		dir, err := graph.CreateRunDir(opts.pipelinesDir, pipelineID, time.Now())
		if err != nil {
			return fmt.Errorf("create run dir: %w", err)
		}
		runDir = dir
	}

	registry, bindDispatch := handler.NewDefaultRegistry(handler.Config{
		Spawner:             newTmuxSpawner().spawn,
		Query:               anthropicQueryFromEnv(),
		InlineQuery:         nil,
		CodegenPollInterval: envSeconds(envSignalPollInterval),
		CodegenTimeout:      envSeconds(envHandlerTimeout),
		HumanGateTimeout:    envSeconds(envHumanGateTimeout),
	})

	emitter, closeEmitter, err := buildEmitter(runDir, logger)
	if err != nil {
		return fmt.Errorf("build emitter: %w", err)
	}
	defer closeEmitter()

	auditWriter, closeAudit, err := buildAuditWriter(runDir)
	if err != nil {
		return fmt.Errorf("build audit writer: %w", err)
	}
	defer closeAudit()

	chain := middleware.Chain(
		middleware.Span(otel.Tracer("github.com/attractorhq/pipeline-engine/cmd/pipeline")),
		middleware.Retry(3, time.Second, emitter, time.Now, nil),
		middleware.TokenCount(emitter, time.Now),
		middleware.Audit(auditWriter, logger),
	)
	dispatch := chain(registry.AsHandlerFunc())
	bindDispatch(dispatch)

	runner, err := graph.NewRunner(g,
		graph.WithDispatch(dispatch),
		graph.WithPipelinesDir(opts.pipelinesDir),
		graph.WithMaxNodeVisits(opts.maxNodeVisits),
		graph.WithInitialContext(initialContext),
		graph.WithEmitter(emitter),
		graph.WithAuditWriter(auditWriter),
		graph.WithMetrics(graph.NewMetrics(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		return fmt.Errorf("build runner: %w", err)
	}

	params := graph.RunParams{
		PipelineID:   pipelineID,
		DotPath:      opts.dotPath,
		ResumeRunDir: runDir,
	}

	cp, err := runner.Run(cmd.Context(), params)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	return exitForOutcome(cmd, cp)
}

// pipelineIDFor derives a fresh ULID pipeline id for a new run, or uses
// the resume directory's base name ("{id}-run-{timestamp}"). The Runner
// stamps events and handler requests with this value; the checkpoint
// keeps the id it was created with, which the Runner loads into the
// context's $pipeline_id.
func pipelineIDFor(opts runOptions) string {
	if opts.resumeRunDir != "" {
		return filepath.Base(opts.resumeRunDir)
	}
	return graph.NewPipelineID(time.Now(), ulid.Monotonic(rand.Reader, 0))
}

func loadContextFile(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return values, nil
}

func buildEmitter(runDir string, logger *slog.Logger) (emit.Emitter, func(), error) {
	noop := func() {}
	jsonlPath := filepath.Join(runDir, "pipeline-events.jsonl")
	jsonl, err := emit.NewJSONLEmitter(jsonlPath)
	if err != nil {
		return nil, noop, err
	}
	bridge := signal.NewBridge(filepath.Join(runDir, "signals"))
	composite := emit.NewCompositeEmitter(logger, jsonl, emit.NewSignalBridgeEmitter(bridge, "pipeline"))
	return composite, func() { composite.Close() }, nil
}

func buildAuditWriter(runDir string) (graph.AuditWriter, func(), error) {
	noop := func() {}
	w, err := audit.NewSQLiteWriter(filepath.Join(runDir, "audit.db"))
	if err != nil {
		return nil, noop, err
	}
	return w, func() { w.Close() }, nil
}

func envSeconds(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	secs, err := time.ParseDuration(v + "s")
	if err != nil {
		return 0
	}
	return secs
}

func anthropicQueryFromEnv() worker.Query {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil
	}
	return worker.AnthropicQuery(apiKey, os.Getenv(envAnthropicModel))
}

// exitForOutcome maps the finished run's terminal state onto the
// process exit code: 0 for an exit node reached with a successful
// outcome, 2 when the run is paused on a human-wait signal (the caller
// is expected to re-invoke with --resume once that signal arrives), 1
// for anything else including a failed exit node.
func exitForOutcome(cmd *cobra.Command, cp *graph.EngineCheckpoint) error {
	if len(cp.NodeRecords) == 0 {
		return fmt.Errorf("run pipeline: no node executed")
	}
	last := cp.NodeRecords[len(cp.NodeRecords)-1]

	if last.Status == graph.StatusWaiting {
		fmt.Fprintf(cmd.OutOrStdout(), "pipeline paused at %s awaiting external input; resume with --resume %s\n", last.NodeID, cp.RunDir)
		os.Exit(2)
		return nil
	}
	if last.HandlerType == string(graph.ShapeExit) && last.Status == graph.StatusSuccess {
		fmt.Fprintf(cmd.OutOrStdout(), "pipeline completed: %s\n", cp.RunDir)
		return nil
	}
	return fmt.Errorf("pipeline did not complete successfully: last node %s status %s", last.NodeID, last.Status)
}
