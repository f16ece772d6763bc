package models

import (
	"time"
)

// Rate limit endpoints
const (
	EndpointPublish = "PUBLISH"
)

// RateLimitWindow is a per (account, endpoint) sliding-window counter of
// recent requests. It is recomputed on every publish attempt and not
// retained beyond the current window's relevance.
type RateLimitWindow struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	AccountID    uint       `gorm:"uniqueIndex:idx_rate_limit_account_endpoint;not null" json:"account_id"`
	Endpoint     string     `gorm:"uniqueIndex:idx_rate_limit_account_endpoint;not null" json:"endpoint"`
	RequestCount int        `gorm:"default:0" json:"request_count"`
	WindowStart  time.Time  `json:"window_start"`
	WindowEnd    time.Time  `json:"window_end"`
	IsLimited    bool       `gorm:"default:false;index" json:"is_limited"`
	ResetAt      *time.Time `json:"reset_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
