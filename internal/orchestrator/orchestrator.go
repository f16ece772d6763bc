package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reels-agent/internal/agent"
	"github.com/reels-agent/internal/agent/scheduling"
	"github.com/reels-agent/internal/config"
	"github.com/reels-agent/internal/jobs"
	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
	"github.com/reels-agent/pkg/logger"
)

// Entry is one row of the cadence table: an agent and how often it runs.
// The offsets are staggered so each stage sees the previous stage's output
// through persisted state (discovery before scoring before compliance
// before scheduling).
type Entry struct {
	Agent   agent.Agent
	Cadence string
}

// Orchestrator periodically invokes each pipeline agent for every active
// account and routes delayed publish jobs. A single account's failure never
// blocks the rest of a sweep.
type Orchestrator struct {
	repository storage.Repository
	runner     *agent.Runner
	publishing agent.Agent
	entries    []Entry
	queue      *jobs.DelayQueue
	cron       *cron.Cron
	log        *logger.Logger
}

// New creates an orchestrator from the configured cadences
func New(
	repository storage.Repository,
	runner *agent.Runner,
	cfg config.SchedulerConfig,
	discovery, scoring, compliance, schedulingAgent, publishing, monitoring agent.Agent,
	cronLog cron.Logger,
	log *logger.Logger,
) *Orchestrator {
	o := &Orchestrator{
		repository: repository,
		runner:     runner,
		publishing: publishing,
		entries: []Entry{
			{Agent: monitoring, Cadence: cfg.MonitoringCron},
			{Agent: discovery, Cadence: cfg.DiscoveryCron},
			{Agent: scoring, Cadence: cfg.ScoringCron},
			{Agent: compliance, Cadence: cfg.ComplianceCron},
			{Agent: schedulingAgent, Cadence: cfg.SchedulingCron},
		},
		cron: cron.New(cron.WithLogger(cronLog)),
		log:  log.WithComponent("orchestrator"),
	}
	o.queue = jobs.NewDelayQueue(o.publishDue, log)

	// The sweep backstops the delay queue for retries and missed timers
	if cfg.PublishCron != "" {
		if _, err := o.cron.AddFunc(cfg.PublishCron, o.sweepDueSchedules); err != nil {
			o.log.Error().Err(err).Str("cron", cfg.PublishCron).Msg("Failed to schedule publish sweep")
		}
	}

	return o
}

// Start registers every cadence entry and starts the cron scheduler
func (o *Orchestrator) Start() error {
	for _, entry := range o.entries {
		entry := entry
		if _, err := o.cron.AddFunc(entry.Cadence, func() {
			o.runForAllAccounts(entry.Agent)
		}); err != nil {
			return fmt.Errorf("failed to schedule %s agent: %w", entry.Agent.Type(), err)
		}
		o.log.Info().
			Str("agent", string(entry.Agent.Type())).
			Str("cron", entry.Cadence).
			Msg("Agent scheduled")
	}

	o.cron.Start()
	return nil
}

// Stop stops the cron scheduler and the delay queue, waiting for any
// in-flight job to finish.
func (o *Orchestrator) Stop() {
	ctx := o.cron.Stop()
	o.queue.Stop()
	<-ctx.Done()
}

// runForAllAccounts invokes one agent for every active account
func (o *Orchestrator) runForAllAccounts(a agent.Agent) {
	ctx := context.Background()

	accounts, err := o.repository.ListActiveAccounts(ctx)
	if err != nil {
		o.log.Error().Err(err).Str("agent", string(a.Type())).Msg("Failed to list accounts")
		return
	}

	for _, account := range accounts {
		outcome := o.runner.Run(ctx, a, agent.Input{AccountID: account.ID})
		if outcome.Err != nil {
			// Keep going; one account must not block the sweep
			o.log.Error().
				Err(outcome.Err).
				Str("agent", string(a.Type())).
				Uint("account_id", account.ID).
				Msg("Agent run failed for account")
			continue
		}

		// Freshly created schedules get a precise delayed publish job
		if result, ok := outcome.Result.(*scheduling.Result); ok {
			o.enqueueCreated(ctx, result)
		}
	}
}

// enqueueCreated routes a delayed publish job for each schedule the
// scheduling agent just created.
func (o *Orchestrator) enqueueCreated(ctx context.Context, result *scheduling.Result) {
	for _, scheduleID := range result.ScheduleIDs {
		schedule, err := o.repository.GetScheduleByID(ctx, scheduleID)
		if err != nil {
			o.log.Warn().Err(err).Uint("schedule_id", scheduleID).Msg("Failed to load created schedule")
			continue
		}
		o.queue.EnqueueAt(schedule.ID, schedule.ScheduledFor)
	}
}

// sweepDueSchedules publishes every schedule whose time has come
func (o *Orchestrator) sweepDueSchedules() {
	ctx := context.Background()
	now := time.Now()

	accounts, err := o.repository.ListActiveAccounts(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("Publish sweep failed to list accounts")
		return
	}

	status := models.ScheduleStatusScheduled
	for _, account := range accounts {
		due, err := o.repository.ListSchedules(ctx, storage.ScheduleFilter{
			AccountID:   &account.ID,
			Status:      &status,
			To:          &now,
			OrderByTime: true,
		})
		if err != nil {
			o.log.Error().Err(err).Uint("account_id", account.ID).Msg("Publish sweep query failed")
			continue
		}

		for _, schedule := range due {
			o.publishDue(ctx, schedule.ID)
		}
	}
}

// publishDue runs the publishing agent for one schedule through the harness
func (o *Orchestrator) publishDue(ctx context.Context, scheduleID uint) {
	schedule, err := o.repository.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		o.log.Error().Err(err).Uint("schedule_id", scheduleID).Msg("Failed to load due schedule")
		return
	}

	outcome := o.runner.Run(ctx, o.publishing, agent.Input{
		AccountID:  schedule.AccountID,
		ScheduleID: schedule.ID,
	})
	if outcome.Err != nil {
		o.log.Error().
			Err(outcome.Err).
			Uint("schedule_id", schedule.ID).
			Msg("Publish invocation failed")
	}
}
