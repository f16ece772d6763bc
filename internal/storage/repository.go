package storage

import (
	"context"
	"time"

	"github.com/reels-agent/internal/models"
)

// Repository defines the interface for data persistence
type Repository interface {
	// Account operations
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccountByID(ctx context.Context, id uint) (*models.Account, error)
	ListActiveAccounts(ctx context.Context) ([]*models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error

	// Source operations
	SaveSource(ctx context.Context, source *models.Source) error
	ListActiveSources(ctx context.Context) ([]*models.Source, error)
	GetSourceByID(ctx context.Context, id uint) (*models.Source, error)

	// Reel operations
	CreateReel(ctx context.Context, reel *models.Reel) error
	GetReelByID(ctx context.Context, id uint) (*models.Reel, error)
	GetReelByMetaID(ctx context.Context, metaID string) (*models.Reel, error)
	ListReels(ctx context.Context, filter ReelFilter) ([]*models.Reel, error)
	UpdateReel(ctx context.Context, reel *models.Reel) error

	// Schedule operations
	CreateSchedule(ctx context.Context, schedule *models.Schedule) error
	GetScheduleByID(ctx context.Context, id uint) (*models.Schedule, error)
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*models.Schedule, error)
	UpdateSchedule(ctx context.Context, schedule *models.Schedule) error
	// ClaimSchedule atomically marks a scheduled schedule as claimed for
	// publishing. Returns false when the schedule was not in the scheduled
	// state, which closes the race between two publish invocations.
	ClaimSchedule(ctx context.Context, id uint) (bool, error)
	// ReleaseSchedule puts a claimed schedule back to scheduled so a later
	// retry can claim it again.
	ReleaseSchedule(ctx context.Context, id uint) error

	// Publish attempt operations
	CreatePublishAttempt(ctx context.Context, attempt *models.PublishAttempt) error
	UpdatePublishAttempt(ctx context.Context, attempt *models.PublishAttempt) error
	// GetRetryingAttempt returns the schedule's attempt awaiting retry, or
	// nil when there is none. Retry invocations resume this row so the retry
	// count stays monotonic across the schedule's attempt history.
	GetRetryingAttempt(ctx context.Context, scheduleID uint) (*models.PublishAttempt, error)
	CountPublishAttemptsSince(ctx context.Context, accountID uint, since time.Time) (int, error)
	CountFailedPublishAttemptsSince(ctx context.Context, accountID uint, since time.Time) (int, error)
	ListDuePublishRetries(ctx context.Context, accountID uint, before time.Time) ([]*models.PublishAttempt, error)

	// Agent run log operations (audit trail, never deleted)
	CreateRunLog(ctx context.Context, log *models.AgentRunLog) error
	UpdateRunLog(ctx context.Context, log *models.AgentRunLog) error
	ListFailedRunsSince(ctx context.Context, since time.Time, limit int) ([]*models.AgentRunLog, error)
	CountFailedRunsSince(ctx context.Context, accountID uint, since time.Time) (int, error)

	// Rate limit window operations
	UpsertRateLimitWindow(ctx context.Context, window *models.RateLimitWindow) error
	GetActiveRateLimit(ctx context.Context, accountID uint) (*models.RateLimitWindow, error)

	// Settings operations
	GetSettings(ctx context.Context, accountID uint) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error

	// Maintenance
	Close() error
	Migrate() error
}

// ReelFilter defines filtering options for reels
type ReelFilter struct {
	AccountID  *uint
	Status     *models.ReelStatus
	ExcludeIDs []uint
	Limit      int
	Offset     int
	OrderBy    string // "viral_score", "discovered_at"
	OrderDesc  bool
	// ThenByDiscoveredDesc adds discovered_at DESC as a tie-break
	ThenByDiscoveredDesc bool
}

// ScheduleFilter defines filtering options for schedules
type ScheduleFilter struct {
	AccountID   *uint
	Status      *models.ScheduleStatus
	StatusIn    []models.ScheduleStatus
	StatusNotIn []models.ScheduleStatus
	ReelID      *uint
	From        *time.Time // scheduled_for >= From
	To          *time.Time // scheduled_for <= To
	Limit       int
	PreloadReel bool
	OrderByTime bool
}

// DefaultReelFilter returns a filter with sensible defaults
func DefaultReelFilter() ReelFilter {
	return ReelFilter{
		Limit:     50,
		OrderBy:   "viral_score",
		OrderDesc: true,
	}
}
