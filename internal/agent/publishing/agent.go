package publishing

import (
	"context"
	"fmt"
	"time"

	"github.com/reels-agent/internal/agent"
	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
	"github.com/reels-agent/pkg/logger"
)

// rateLimitWindow is the trailing interval publish attempts are counted over
const rateLimitWindow = time.Hour

// Platform is the slice of the Graph client publishing needs
type Platform interface {
	CheckAvailability(ctx context.Context, mediaID, accessToken string) (bool, error)
	CreateContainer(ctx context.Context, accountID, mediaURL, caption, accessToken string) (string, error)
	FinalizePublish(ctx context.Context, accountID, containerID, accessToken string) (string, error)
}

// Config holds publish protocol settings
type Config struct {
	RateLimitPerHour int
	MaxRetries       int
	BaseBackoff      time.Duration
	ProcessingDelay  time.Duration
}

// DefaultConfig returns the default publish protocol settings
func DefaultConfig() Config {
	return Config{
		RateLimitPerHour: 200,
		MaxRetries:       3,
		BaseBackoff:      5 * time.Second,
		ProcessingDelay:  2 * time.Second,
	}
}

// Agent runs the two-phase publish protocol for one schedule. Failures
// inside the protocol are handled here (attempt bookkeeping plus exponential
// retry scheduling) and reported in the Result rather than as run errors, so
// the harness does not stack its own backoff on top.
type Agent struct {
	repository storage.Repository
	platform   Platform
	cfg        Config
	log        *logger.Logger
}

// NewAgent creates a new publishing agent
func NewAgent(repository storage.Repository, platform Platform, cfg Config, log *logger.Logger) *Agent {
	if cfg.RateLimitPerHour <= 0 {
		cfg.RateLimitPerHour = 200
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	return &Agent{
		repository: repository,
		platform:   platform,
		cfg:        cfg,
		log:        log.WithComponent("publishing"),
	}
}

// Result contains the results of a publish run
type Result struct {
	Published bool   `json:"published"`
	MediaID   string `json:"media_id,omitempty"`
	Error     string `json:"error,omitempty"`
	RetryAt   string `json:"retry_at,omitempty"`
	Terminal  bool   `json:"terminal,omitempty"`
	Note      string `json:"note,omitempty"`
}

func (r *Result) Message() string {
	switch {
	case r.Note != "":
		return r.Note
	case r.Published:
		return fmt.Sprintf("reel published as media %s", r.MediaID)
	case r.Terminal:
		return fmt.Sprintf("publish failed terminally: %s", r.Error)
	default:
		return fmt.Sprintf("publish failed, retry at %s: %s", r.RetryAt, r.Error)
	}
}

// Type implements agent.Agent
func (a *Agent) Type() models.AgentType { return models.AgentPublishing }

// Execute implements agent.Agent
func (a *Agent) Execute(ctx context.Context, in agent.Input) (agent.Result, error) {
	if in.ScheduleID == 0 {
		return nil, fmt.Errorf("schedule id is required")
	}

	schedule, err := a.repository.GetScheduleByID(ctx, in.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("schedule not found: %w", err)
	}
	if schedule.Reel == nil || schedule.Account == nil {
		return nil, fmt.Errorf("schedule %d is missing its reel or account", schedule.ID)
	}

	// Claim-then-publish: duplicate triggers for the same schedule lose the
	// claim and no-op.
	claimed, err := a.repository.ClaimSchedule(ctx, schedule.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim schedule: %w", err)
	}
	if !claimed {
		return &Result{Note: "schedule already processed"}, nil
	}

	attempt, err := a.openAttempt(ctx, schedule)
	if err != nil {
		// Nothing attempted yet; hand the schedule back
		if rerr := a.repository.ReleaseSchedule(ctx, schedule.ID); rerr != nil {
			a.log.Error().Err(rerr).Uint("schedule_id", schedule.ID).Msg("Failed to release schedule")
		}
		return nil, err
	}

	mediaID, containerID, pubErr := a.publish(ctx, schedule, attempt)
	if pubErr == nil {
		return a.markSuccess(ctx, schedule, attempt, containerID, mediaID)
	}
	return a.markFailure(ctx, schedule, attempt, pubErr)
}

// openAttempt resumes the schedule's retrying attempt if one exists so the
// retry count carries across invocations, otherwise starts a fresh one.
func (a *Agent) openAttempt(ctx context.Context, schedule *models.Schedule) (*models.PublishAttempt, error) {
	attempt, err := a.repository.GetRetryingAttempt(ctx, schedule.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up retrying attempt: %w", err)
	}
	if attempt != nil {
		attempt.Status = models.PublishStatusProcessing
		attempt.NextRetryAt = nil
		if err := a.repository.UpdatePublishAttempt(ctx, attempt); err != nil {
			return nil, fmt.Errorf("failed to resume attempt: %w", err)
		}
		return attempt, nil
	}

	attempt = &models.PublishAttempt{
		ScheduleID:  schedule.ID,
		AccountID:   schedule.AccountID,
		Status:      models.PublishStatusQueued,
		AttemptedAt: time.Now(),
	}
	if err := a.repository.CreatePublishAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to create publish attempt: %w", err)
	}
	return attempt, nil
}

// publish runs steps 2-4 of the protocol: rate limit gate, availability
// check, caption build and the two-phase container publish.
func (a *Agent) publish(ctx context.Context, schedule *models.Schedule, attempt *models.PublishAttempt) (mediaID, containerID string, err error) {
	if err := a.checkRateLimit(ctx, schedule.AccountID); err != nil {
		return "", "", err
	}

	reel := schedule.Reel
	account := schedule.Account

	available, err := a.platform.CheckAvailability(ctx, reel.MetaID, account.AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to verify reel availability: %w", err)
	}
	if !available {
		return "", "", fmt.Errorf("source reel %s no longer available", reel.MetaID)
	}

	stored, err := a.repository.GetSettings(ctx, schedule.AccountID)
	if err != nil {
		return "", "", fmt.Errorf("failed to load settings: %w", err)
	}
	caption := BuildCaption(reel, reel.Source, models.SettingsOrDefault(stored, schedule.AccountID))

	attempt.Status = models.PublishStatusProcessing
	if err := a.repository.UpdatePublishAttempt(ctx, attempt); err != nil {
		a.log.Warn().Err(err).Uint("attempt_id", attempt.ID).Msg("Failed to mark attempt processing")
	}

	containerID, err = a.platform.CreateContainer(ctx, account.MetaAccountID, reel.MediaURL, caption, account.AccessToken)
	if err != nil {
		return "", "", err
	}

	// The platform needs a moment to process the container before it can
	// be finalized
	if a.cfg.ProcessingDelay > 0 {
		select {
		case <-time.After(a.cfg.ProcessingDelay):
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}

	mediaID, err = a.platform.FinalizePublish(ctx, account.MetaAccountID, containerID, account.AccessToken)
	if err != nil {
		return "", containerID, err
	}
	return mediaID, containerID, nil
}

// checkRateLimit counts the account's attempts in the trailing hour and
// refuses to touch the platform once the cap is reached. The window row is
// upserted either way so concurrent attempts stay consistent.
func (a *Agent) checkRateLimit(ctx context.Context, accountID uint) error {
	now := time.Now()
	windowStart := now.Add(-rateLimitWindow)

	count, err := a.repository.CountPublishAttemptsSince(ctx, accountID, windowStart)
	if err != nil {
		return fmt.Errorf("failed to count recent attempts: %w", err)
	}

	limited := count >= a.cfg.RateLimitPerHour
	window := &models.RateLimitWindow{
		AccountID:    accountID,
		Endpoint:     models.EndpointPublish,
		RequestCount: count,
		WindowStart:  windowStart,
		WindowEnd:    now,
		IsLimited:    limited,
	}
	if limited {
		resetAt := windowStart.Add(rateLimitWindow)
		window.ResetAt = &resetAt
	}
	if err := a.repository.UpsertRateLimitWindow(ctx, window); err != nil {
		return fmt.Errorf("failed to update rate limit window: %w", err)
	}

	if limited {
		return fmt.Errorf("rate limit exceeded: %d attempts in the last hour", count)
	}
	return nil
}

func (a *Agent) markSuccess(ctx context.Context, schedule *models.Schedule, attempt *models.PublishAttempt, containerID, mediaID string) (agent.Result, error) {
	now := time.Now()

	attempt.Status = models.PublishStatusSuccess
	attempt.ContainerID = containerID
	attempt.MediaID = mediaID
	attempt.CompletedAt = &now
	if err := a.repository.UpdatePublishAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to finalize attempt: %w", err)
	}

	schedule.Status = models.ScheduleStatusPublished
	schedule.PublishedAt = &now
	if err := a.repository.UpdateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to finalize schedule: %w", err)
	}

	reel := schedule.Reel
	reel.Status = models.ReelStatusPublished
	if err := a.repository.UpdateReel(ctx, reel); err != nil {
		return nil, fmt.Errorf("failed to finalize reel: %w", err)
	}

	a.log.Info().
		Uint("schedule_id", schedule.ID).
		Uint("reel_id", reel.ID).
		Str("media_id", mediaID).
		Msg("Reel published")

	return &Result{Published: true, MediaID: mediaID}, nil
}

// markFailure records the failed attempt, then either schedules an
// exponential retry or moves the schedule and reel to failed once the retry
// cap is reached. Retry scheduling is the agent's own bookkeeping, so the
// run itself still completes.
func (a *Agent) markFailure(ctx context.Context, schedule *models.Schedule, attempt *models.PublishAttempt, pubErr error) (agent.Result, error) {
	now := time.Now()

	attempt.Status = models.PublishStatusFailed
	attempt.Error = pubErr.Error()
	attempt.CompletedAt = &now
	if err := a.repository.UpdatePublishAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to record attempt failure: %w", err)
	}

	a.log.Error().
		Err(pubErr).
		Uint("schedule_id", schedule.ID).
		Int("retry_count", attempt.RetryCount).
		Msg("Publish failed")

	if attempt.RetryCount >= a.cfg.MaxRetries {
		schedule.Status = models.ScheduleStatusFailed
		if err := a.repository.UpdateSchedule(ctx, schedule); err != nil {
			return nil, fmt.Errorf("failed to fail schedule: %w", err)
		}
		reel := schedule.Reel
		reel.Status = models.ReelStatusFailed
		if err := a.repository.UpdateReel(ctx, reel); err != nil {
			return nil, fmt.Errorf("failed to fail reel: %w", err)
		}
		return &Result{Error: pubErr.Error(), Terminal: true}, nil
	}

	// delay = base * 2^retryCount: 5s, 10s, 20s, ...
	delay := a.cfg.BaseBackoff * (1 << attempt.RetryCount)
	nextRetryAt := now.Add(delay)

	attempt.Status = models.PublishStatusRetrying
	attempt.RetryCount++
	attempt.NextRetryAt = &nextRetryAt
	attempt.CompletedAt = nil
	if err := a.repository.UpdatePublishAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to schedule retry: %w", err)
	}

	// Hand the claim back so the retry sweep can claim it again
	if err := a.repository.ReleaseSchedule(ctx, schedule.ID); err != nil {
		return nil, fmt.Errorf("failed to release schedule: %w", err)
	}

	return &Result{
		Error:   pubErr.Error(),
		RetryAt: nextRetryAt.Format(time.RFC3339),
	}, nil
}
