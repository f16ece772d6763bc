package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
	"github.com/reels-agent/pkg/logger"
)

const (
	// DefaultMaxRetries bounds the harness retry loop
	DefaultMaxRetries = 3
	// DefaultBaseDelay is multiplied by (retry+1) between attempts
	DefaultBaseDelay = 5 * time.Second
)

// Runner is the generic execution harness: it logs a run, invokes the
// agent's business logic, retries with linear backoff and records the
// terminal outcome. The last error is never swallowed.
type Runner struct {
	repo       storage.Repository
	maxRetries int
	baseDelay  time.Duration
	log        *logger.Logger
}

// NewRunner creates a runner with the given retry policy. Non-positive
// values fall back to the defaults.
func NewRunner(repo storage.Repository, maxRetries int, baseDelay time.Duration, log *logger.Logger) *Runner {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Runner{
		repo:       repo,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		log:        log.WithComponent("runner"),
	}
}

// Run executes one agent invocation under the harness
func (r *Runner) Run(ctx context.Context, a Agent, in Input) Outcome {
	startedAt := time.Now()

	runLog := &models.AgentRunLog{
		AgentType: a.Type(),
		AccountID: in.AccountID,
		Status:    models.RunStatusRunning,
		Input:     toJSON(in),
		StartedAt: startedAt,
	}
	if err := r.repo.CreateRunLog(ctx, runLog); err != nil {
		return Outcome{Err: fmt.Errorf("failed to create run log: %w", err)}
	}

	log := r.log.WithAccountID(in.AccountID)
	retryCount := 0

	for {
		result, err := a.Execute(ctx, in)
		if err == nil {
			now := time.Now()
			runLog.Status = models.RunStatusCompleted
			runLog.Output = toJSON(result)
			runLog.RetryCount = retryCount
			runLog.CompletedAt = &now
			runLog.DurationMs = now.Sub(startedAt).Milliseconds()
			if uerr := r.repo.UpdateRunLog(ctx, runLog); uerr != nil {
				log.Warn().Err(uerr).Msg("Failed to finalize run log")
			}

			log.Info().
				Str("agent", string(a.Type())).
				Int64("duration_ms", runLog.DurationMs).
				Str("result", result.Message()).
				Msg("Agent run completed")
			return Outcome{Success: true, Result: result}
		}

		if retryCount >= r.maxRetries {
			now := time.Now()
			runLog.Status = models.RunStatusFailed
			runLog.Error = err.Error()
			runLog.RetryCount = retryCount
			runLog.CompletedAt = &now
			runLog.DurationMs = now.Sub(startedAt).Milliseconds()
			if uerr := r.repo.UpdateRunLog(ctx, runLog); uerr != nil {
				log.Warn().Err(uerr).Msg("Failed to finalize run log")
			}

			log.Error().
				Err(err).
				Str("agent", string(a.Type())).
				Int("retries", retryCount).
				Msg("Agent run failed")
			return Outcome{Err: err}
		}

		runLog.Status = models.RunStatusRetrying
		runLog.Error = err.Error()
		runLog.RetryCount = retryCount
		if uerr := r.repo.UpdateRunLog(ctx, runLog); uerr != nil {
			log.Warn().Err(uerr).Msg("Failed to update run log")
		}

		delay := r.baseDelay * time.Duration(retryCount+1)
		log.Warn().
			Err(err).
			Str("agent", string(a.Type())).
			Dur("backoff", delay).
			Msg("Agent run failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			now := time.Now()
			runLog.Status = models.RunStatusFailed
			runLog.Error = ctx.Err().Error()
			runLog.CompletedAt = &now
			runLog.DurationMs = now.Sub(startedAt).Milliseconds()
			if uerr := r.repo.UpdateRunLog(ctx, runLog); uerr != nil {
				log.Warn().Err(uerr).Msg("Failed to finalize run log")
			}
			return Outcome{Err: ctx.Err()}
		}
		retryCount++
	}
}
