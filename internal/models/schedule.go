package models

import (
	"time"
)

// ScheduleStatus mirrors the subset of reel states a schedule can be in
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	// publishing is the transient claim taken by a publish invocation so two
	// invocations for the same schedule cannot both proceed
	ScheduleStatusPublishing ScheduleStatus = "publishing"
	ScheduleStatusPublished  ScheduleStatus = "published"
	ScheduleStatusFailed     ScheduleStatus = "failed"
	ScheduleStatusDeleted    ScheduleStatus = "deleted"
)

// ActiveScheduleStatuses are the non-terminal schedule states; a reel tied to
// one of these cannot be scheduled again.
var ActiveScheduleStatuses = []ScheduleStatus{
	ScheduleStatusScheduled,
	ScheduleStatusPublishing,
	ScheduleStatusPublished,
}

// Schedule binds one reel to one future timestamp for one account.
// At most one non-deleted, non-failed schedule may exist per
// (account, timestamp), and at most one active schedule per reel.
type Schedule struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	ReelID       uint           `gorm:"index;not null" json:"reel_id"`
	Reel         *Reel          `gorm:"foreignKey:ReelID" json:"reel,omitempty"`
	AccountID    uint           `gorm:"index;not null" json:"account_id"`
	Account      *Account       `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	ScheduledFor time.Time      `gorm:"index;not null" json:"scheduled_for"`
	Status       ScheduleStatus `gorm:"default:'scheduled';index" json:"status"`
	PublishedAt  *time.Time     `json:"published_at"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal returns true once the schedule can never be published
func (s *Schedule) IsTerminal() bool {
	return s.Status == ScheduleStatusFailed || s.Status == ScheduleStatusDeleted
}

// PublishStatus represents the state of one publish attempt
type PublishStatus string

const (
	PublishStatusQueued     PublishStatus = "queued"
	PublishStatusProcessing PublishStatus = "processing"
	PublishStatusSuccess    PublishStatus = "success"
	PublishStatusFailed     PublishStatus = "failed"
	PublishStatusRetrying   PublishStatus = "retrying"
)

// PublishAttempt records one execution of the two-phase publish protocol.
// Retry count is monotonically non-decreasing within one schedule's attempt
// history; once an attempt succeeds no further attempts are created.
type PublishAttempt struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	ScheduleID  uint          `gorm:"index;not null" json:"schedule_id"`
	Schedule    *Schedule     `gorm:"foreignKey:ScheduleID" json:"schedule,omitempty"`
	AccountID   uint          `gorm:"index;not null" json:"account_id"`
	Status      PublishStatus `gorm:"default:'queued';index" json:"status"`
	RetryCount  int           `gorm:"default:0" json:"retry_count"`
	NextRetryAt *time.Time    `gorm:"index" json:"next_retry_at"`
	ContainerID string        `json:"container_id"`
	MediaID     string        `json:"media_id"`
	Error       string        `gorm:"type:text" json:"error"`
	AttemptedAt time.Time     `gorm:"autoCreateTime;index" json:"attempted_at"`
	CompletedAt *time.Time    `json:"completed_at"`
}
