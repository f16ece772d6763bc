package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/reels-agent/internal/agent"
	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
	"github.com/reels-agent/pkg/logger"
)

const (
	// healthSampleSize caps how many failed runs the health check inspects
	healthSampleSize = 10
	// alert thresholds over the trailing hour
	publishFailureAlertThreshold = 5
	agentFailureAlertThreshold   = 3
)

// Agent closes the pipeline loop: it re-drives due publish retries,
// backfills slots vacated by failed schedules, samples agent health and
// raises alerts. The four sweeps are independent; one failing does not stop
// the others.
type Agent struct {
	repository storage.Repository
	runner     *agent.Runner
	publishing agent.Agent
	scheduling agent.Agent
	log        *logger.Logger
}

// NewAgent creates a new monitoring agent
func NewAgent(repository storage.Repository, runner *agent.Runner, publishing, scheduling agent.Agent, log *logger.Logger) *Agent {
	return &Agent{
		repository: repository,
		runner:     runner,
		publishing: publishing,
		scheduling: scheduling,
		log:        log.WithComponent("monitoring"),
	}
}

// Result contains the results of a monitoring run
type Result struct {
	RetriedPublishes  int `json:"retried_publishes"`
	SchedulesReplaced int `json:"schedules_replaced"`
	FailedRunsSampled int `json:"failed_runs_sampled"`
	Alerts            int `json:"alerts"`
}

func (r *Result) Message() string {
	return fmt.Sprintf("monitoring complete: %d retries, %d replacements, %d alerts",
		r.RetriedPublishes, r.SchedulesReplaced, r.Alerts)
}

// Type implements agent.Agent
func (a *Agent) Type() models.AgentType { return models.AgentMonitoring }

// Execute implements agent.Agent
func (a *Agent) Execute(ctx context.Context, in agent.Input) (agent.Result, error) {
	if in.AccountID == 0 {
		return nil, fmt.Errorf("account id is required")
	}

	result := &Result{}

	a.retryDuePublishes(ctx, in.AccountID, result)
	a.replaceFailedSchedules(ctx, in.AccountID, result)
	a.checkAgentHealth(ctx, result)
	a.raiseAlerts(ctx, in.AccountID, result)

	return result, nil
}

// retryDuePublishes re-invokes the publish protocol for every attempt whose
// backoff has elapsed.
func (a *Agent) retryDuePublishes(ctx context.Context, accountID uint, result *Result) {
	due, err := a.repository.ListDuePublishRetries(ctx, accountID, time.Now())
	if err != nil {
		a.log.Error().Err(err).Msg("Retry sweep failed")
		return
	}

	for _, attempt := range due {
		outcome := a.runner.Run(ctx, a.publishing, agent.Input{
			AccountID:  accountID,
			ScheduleID: attempt.ScheduleID,
		})
		if outcome.Err != nil {
			a.log.Error().
				Err(outcome.Err).
				Uint("attempt_id", attempt.ID).
				Uint("schedule_id", attempt.ScheduleID).
				Msg("Publish retry failed")
			continue
		}
		result.RetriedPublishes++
	}
}

// replaceFailedSchedules backfills the slot of every failed schedule whose
// target time is still in the future, then retires the failed schedule.
func (a *Agent) replaceFailedSchedules(ctx context.Context, accountID uint, result *Result) {
	now := time.Now()
	status := models.ScheduleStatusFailed
	failed, err := a.repository.ListSchedules(ctx, storage.ScheduleFilter{
		AccountID: &accountID,
		Status:    &status,
		From:      &now,
	})
	if err != nil {
		a.log.Error().Err(err).Msg("Replacement sweep failed")
		return
	}

	for _, schedule := range failed {
		targetDate := schedule.ScheduledFor
		outcome := a.runner.Run(ctx, a.scheduling, agent.Input{
			AccountID:  accountID,
			TargetDate: &targetDate,
		})
		if outcome.Err != nil {
			a.log.Error().
				Err(outcome.Err).
				Uint("schedule_id", schedule.ID).
				Msg("Failed to backfill schedule")
			continue
		}

		// The failed schedule is superseded, never re-used
		schedule.Status = models.ScheduleStatusDeleted
		if err := a.repository.UpdateSchedule(ctx, schedule); err != nil {
			a.log.Error().
				Err(err).
				Uint("schedule_id", schedule.ID).
				Msg("Failed to retire replaced schedule")
			continue
		}
		result.SchedulesReplaced++
	}
}

// checkAgentHealth samples recent failed runs across all agents as an
// informational signal.
func (a *Agent) checkAgentHealth(ctx context.Context, result *Result) {
	failedRuns, err := a.repository.ListFailedRunsSince(ctx, time.Now().Add(-time.Hour), healthSampleSize)
	if err != nil {
		a.log.Error().Err(err).Msg("Health check failed")
		return
	}

	result.FailedRunsSampled = len(failedRuns)
	for _, run := range failedRuns {
		a.log.Warn().
			Str("agent", string(run.AgentType)).
			Time("started_at", run.StartedAt).
			Str("error", run.Error).
			Msg("Agent run failed in the last hour")
	}
}

// raiseAlerts logs one alert per detected critical condition
func (a *Agent) raiseAlerts(ctx context.Context, accountID uint, result *Result) {
	issues := a.criticalIssues(ctx, accountID)
	for _, issue := range issues {
		a.log.Error().
			Uint("account_id", accountID).
			Str("issue", issue).
			Msg("CRITICAL ALERT")
	}
	result.Alerts = len(issues)
}

func (a *Agent) criticalIssues(ctx context.Context, accountID uint) []string {
	var issues []string
	hourAgo := time.Now().Add(-time.Hour)

	window, err := a.repository.GetActiveRateLimit(ctx, accountID)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to check rate limit window")
	} else if window != nil {
		issue := "rate limit active"
		if window.ResetAt != nil {
			issue = fmt.Sprintf("rate limit active, resets at %s", window.ResetAt.Format(time.RFC3339))
		}
		issues = append(issues, issue)
	}

	failures, err := a.repository.CountFailedPublishAttemptsSince(ctx, accountID, hourAgo)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to count publish failures")
	} else if failures >= publishFailureAlertThreshold {
		issues = append(issues, fmt.Sprintf("%d publish failures in the last hour", failures))
	}

	failedRuns, err := a.repository.CountFailedRunsSince(ctx, accountID, hourAgo)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to count agent failures")
	} else if failedRuns >= agentFailureAlertThreshold {
		issues = append(issues, fmt.Sprintf("%d agent failures in the last hour", failedRuns))
	}

	return issues
}
