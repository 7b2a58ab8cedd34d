package middleware

import (
	"context"
	"time"

	"github.com/attractorhq/pipeline-engine/graph"
	"github.com/attractorhq/pipeline-engine/graph/emit"
)

// DefaultMaxRetryAttempts is used when a node declares no max_retries
// attribute.
const DefaultMaxRetryAttempts = 3

// Retry re-invokes next on a failure outcome, up to max_attempts times
// (resolved from node.max_retries, falling back to defaultMaxAttempts).
// Between attempts it sleeps base_delay * 2^attempt, with no jitter — a
// deliberate divergence from a jittered backoff, so that a scripted
// fixture ("fails twice then succeeds, sleeps 1s then 2s") is exactly
// reproducible in a test without stubbing a random source. A
// non-nil handler error is never retried: that signals the handler could
// not even attempt the work, not a retryable failure outcome.
//
// emitter receives a retry.triggered event before every sleep; clock and
// sleep are injectable so tests never actually wait in real time.
func Retry(defaultMaxAttempts int, baseDelay time.Duration, emitter emit.Emitter, now func() time.Time, sleep func(context.Context, time.Duration) error) Middleware {
	if defaultMaxAttempts < 1 {
		defaultMaxAttempts = DefaultMaxRetryAttempts
	}
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = contextAwareSleep
	}

	return func(next graph.HandlerFunc) graph.HandlerFunc {
		return func(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
			maxAttempts := resolveMaxAttempts(req.Node, defaultMaxAttempts)
			events := emit.NewEventBuilder(req.PipelineID, now)

			var outcome graph.Outcome
			var err error
			for attempt := 0; attempt < maxAttempts; attempt++ {
				attemptReq := req
				attemptReq.AttemptNumber = attempt + 1

				outcome, err = next(ctx, attemptReq)
				if err != nil {
					return outcome, err
				}
				if outcome.Status != graph.StatusFailure {
					return outcome, nil
				}
				if attempt == maxAttempts-1 {
					break
				}

				delay := baseDelay * (1 << uint(attempt))
				emitter.Emit(events.RetryTriggered(req.Node.ID, map[string]any{
					"attempt":       attempt + 1,
					"max_attempts":  maxAttempts,
					"delay_seconds": delay.Seconds(),
				}))
				if sleepErr := sleep(ctx, delay); sleepErr != nil {
					return outcome, sleepErr
				}
			}
			return outcome, nil
		}
	}
}

func resolveMaxAttempts(node *graph.Node, fallback int) int {
	if n, ok := node.MaxRetries(); ok && n > 0 {
		return n
	}
	return fallback
}

func contextAwareSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
