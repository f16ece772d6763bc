package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" && dsn != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// Lifecycle transitions are managed in application code
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Account{},
		&models.Source{},
		&models.Reel{},
		&models.Schedule{},
		&models.PublishAttempt{},
		&models.AgentRunLog{},
		&models.RateLimitWindow{},
		&models.Settings{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Account operations

func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *Repository) GetAccountByID(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *Repository) ListActiveAccounts(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.AccountStatusActive).
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Save(account).Error
}

// Source operations

func (r *Repository) SaveSource(ctx context.Context, source *models.Source) error {
	return r.db.WithContext(ctx).Save(source).Error
}

func (r *Repository) ListActiveSources(ctx context.Context) ([]*models.Source, error) {
	var sources []*models.Source
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

func (r *Repository) GetSourceByID(ctx context.Context, id uint) (*models.Source, error) {
	var source models.Source
	if err := r.db.WithContext(ctx).First(&source, id).Error; err != nil {
		return nil, err
	}
	return &source, nil
}

// Reel operations

func (r *Repository) CreateReel(ctx context.Context, reel *models.Reel) error {
	return r.db.WithContext(ctx).Create(reel).Error
}

func (r *Repository) GetReelByID(ctx context.Context, id uint) (*models.Reel, error) {
	var reel models.Reel
	if err := r.db.WithContext(ctx).Preload("Source").First(&reel, id).Error; err != nil {
		return nil, err
	}
	return &reel, nil
}

func (r *Repository) GetReelByMetaID(ctx context.Context, metaID string) (*models.Reel, error) {
	var reel models.Reel
	err := r.db.WithContext(ctx).Where("meta_id = ?", metaID).First(&reel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reel, nil
}

func (r *Repository) ListReels(ctx context.Context, filter storage.ReelFilter) ([]*models.Reel, error) {
	var reels []*models.Reel
	query := r.db.WithContext(ctx).Model(&models.Reel{})

	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if len(filter.ExcludeIDs) > 0 {
		query = query.Where("id NOT IN ?", filter.ExcludeIDs)
	}

	// Ordering
	orderCol := "viral_score"
	if filter.OrderBy != "" {
		orderCol = filter.OrderBy
	}
	if filter.OrderDesc {
		query = query.Order(orderCol + " DESC")
	} else {
		query = query.Order(orderCol + " ASC")
	}
	if filter.ThenByDiscoveredDesc {
		query = query.Order("discovered_at DESC")
	}

	// Pagination
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&reels).Error; err != nil {
		return nil, err
	}
	return reels, nil
}

func (r *Repository) UpdateReel(ctx context.Context, reel *models.Reel) error {
	return r.db.WithContext(ctx).Save(reel).Error
}

// Schedule operations

func (r *Repository) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

func (r *Repository) GetScheduleByID(ctx context.Context, id uint) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := r.db.WithContext(ctx).
		Preload("Reel").
		Preload("Reel.Source").
		Preload("Account").
		First(&schedule, id).Error; err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *Repository) ListSchedules(ctx context.Context, filter storage.ScheduleFilter) ([]*models.Schedule, error) {
	var schedules []*models.Schedule
	query := r.db.WithContext(ctx).Model(&models.Schedule{})

	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if len(filter.StatusIn) > 0 {
		query = query.Where("status IN ?", filter.StatusIn)
	}
	if len(filter.StatusNotIn) > 0 {
		query = query.Where("status NOT IN ?", filter.StatusNotIn)
	}
	if filter.ReelID != nil {
		query = query.Where("reel_id = ?", *filter.ReelID)
	}
	if filter.From != nil {
		query = query.Where("scheduled_for >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("scheduled_for <= ?", *filter.To)
	}
	if filter.PreloadReel {
		query = query.Preload("Reel")
	}
	if filter.OrderByTime {
		query = query.Order("scheduled_for ASC")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *Repository) UpdateSchedule(ctx context.Context, schedule *models.Schedule) error {
	return r.db.WithContext(ctx).Save(schedule).Error
}

func (r *Repository) ClaimSchedule(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ? AND status = ?", id, models.ScheduleStatusScheduled).
		Update("status", models.ScheduleStatusPublishing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) ReleaseSchedule(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ? AND status = ?", id, models.ScheduleStatusPublishing).
		Update("status", models.ScheduleStatusScheduled).Error
}

// Publish attempt operations

func (r *Repository) CreatePublishAttempt(ctx context.Context, attempt *models.PublishAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *Repository) UpdatePublishAttempt(ctx context.Context, attempt *models.PublishAttempt) error {
	return r.db.WithContext(ctx).Save(attempt).Error
}

func (r *Repository) GetRetryingAttempt(ctx context.Context, scheduleID uint) (*models.PublishAttempt, error) {
	var attempt models.PublishAttempt
	err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND status = ?", scheduleID, models.PublishStatusRetrying).
		Order("attempted_at DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *Repository) CountPublishAttemptsSince(ctx context.Context, accountID uint, since time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PublishAttempt{}).
		Where("account_id = ? AND attempted_at >= ?", accountID, since).
		Count(&count).Error
	return int(count), err
}

func (r *Repository) CountFailedPublishAttemptsSince(ctx context.Context, accountID uint, since time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PublishAttempt{}).
		Where("account_id = ? AND status = ? AND attempted_at >= ?",
			accountID, models.PublishStatusFailed, since).
		Count(&count).Error
	return int(count), err
}

func (r *Repository) ListDuePublishRetries(ctx context.Context, accountID uint, before time.Time) ([]*models.PublishAttempt, error) {
	var attempts []*models.PublishAttempt
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ? AND next_retry_at <= ?",
			accountID, models.PublishStatusRetrying, before).
		Preload("Schedule").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// Agent run log operations

func (r *Repository) CreateRunLog(ctx context.Context, log *models.AgentRunLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *Repository) UpdateRunLog(ctx context.Context, log *models.AgentRunLog) error {
	return r.db.WithContext(ctx).Save(log).Error
}

func (r *Repository) ListFailedRunsSince(ctx context.Context, since time.Time, limit int) ([]*models.AgentRunLog, error) {
	var logs []*models.AgentRunLog
	query := r.db.WithContext(ctx).
		Where("status = ? AND started_at >= ?", models.RunStatusFailed, since)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *Repository) CountFailedRunsSince(ctx context.Context, accountID uint, since time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AgentRunLog{}).
		Where("account_id = ? AND status = ? AND started_at >= ?",
			accountID, models.RunStatusFailed, since).
		Count(&count).Error
	return int(count), err
}

// Rate limit window operations

// UpsertRateLimitWindow writes the window with a transactional upsert keyed
// by (account, endpoint) so concurrent publish attempts do not undercount.
func (r *Repository) UpsertRateLimitWindow(ctx context.Context, window *models.RateLimitWindow) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"request_count", "window_start", "window_end", "is_limited", "reset_at", "updated_at",
		}),
	}).Create(window).Error
}

func (r *Repository) GetActiveRateLimit(ctx context.Context, accountID uint) (*models.RateLimitWindow, error) {
	var window models.RateLimitWindow
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND is_limited = ?", accountID, true).
		First(&window).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &window, nil
}

// Settings operations

func (r *Repository) GetSettings(ctx context.Context, accountID uint) (*models.Settings, error) {
	var settings models.Settings
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *Repository) SaveSettings(ctx context.Context, settings *models.Settings) error {
	return r.db.WithContext(ctx).Save(settings).Error
}
