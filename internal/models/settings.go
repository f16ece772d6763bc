package models

import (
	"time"
)

// Default per-account settings applied when no row exists
var DefaultTimeSlots = []string{"12:00", "15:00", "18:00", "20:00", "22:00"}

const (
	DefaultDailyReelCount      = 5
	DefaultMinReelGapMinutes   = 90
	DefaultViralScoreThreshold = 70
)

// Settings holds per-account pipeline configuration. It is read-only to the
// agents; ownership stays with account configuration.
type Settings struct {
	ID                  uint        `gorm:"primaryKey" json:"id"`
	AccountID           uint        `gorm:"uniqueIndex;not null" json:"account_id"`
	PostingSchedule     StringSlice `gorm:"type:json" json:"posting_schedule"` // ordered "HH:MM" slots
	DailyReelCount      int         `gorm:"default:5" json:"daily_reel_count"`
	MinReelGapMinutes   int         `gorm:"default:90" json:"min_reel_gap_minutes"` // informational, not enforced by slot computation
	ViralScoreThreshold int         `gorm:"default:70" json:"viral_score_threshold"`
	CaptionTemplate     string      `gorm:"type:text" json:"caption_template"`
	CreatedAt           time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// SettingsOrDefault returns s with defaults filled in, or a fully-default
// Settings for the account when s is nil.
func SettingsOrDefault(s *Settings, accountID uint) *Settings {
	if s == nil {
		s = &Settings{AccountID: accountID}
	}
	out := *s
	if len(out.PostingSchedule) == 0 {
		out.PostingSchedule = append(StringSlice{}, DefaultTimeSlots...)
	}
	if out.DailyReelCount <= 0 {
		out.DailyReelCount = DefaultDailyReelCount
	}
	if out.MinReelGapMinutes <= 0 {
		out.MinReelGapMinutes = DefaultMinReelGapMinutes
	}
	if out.ViralScoreThreshold <= 0 {
		out.ViralScoreThreshold = DefaultViralScoreThreshold
	}
	return &out
}
