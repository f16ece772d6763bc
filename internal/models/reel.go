package models

import (
	"time"
)

// ReelStatus represents the lifecycle state of a discovered reel.
// Transitions are one-directional: discovered -> approved/rejected ->
// scheduled -> published/failed. Deleted marks reels retired outside the
// normal flow, e.g. when the source media disappears for good.
type ReelStatus string

const (
	ReelStatusDiscovered ReelStatus = "discovered"
	ReelStatusApproved   ReelStatus = "approved"
	ReelStatusRejected   ReelStatus = "rejected"
	ReelStatusScheduled  ReelStatus = "scheduled"
	ReelStatusPublished  ReelStatus = "published"
	ReelStatusFailed     ReelStatus = "failed"
	ReelStatusDeleted    ReelStatus = "deleted"
)

// Reel represents a discovered piece of candidate media
type Reel struct {
	ID           uint     `gorm:"primaryKey" json:"id"`
	MetaID       string   `gorm:"uniqueIndex;not null" json:"meta_id"` // external source id, discovery is idempotent on it
	AccountID    uint     `gorm:"index;not null" json:"account_id"`
	Account      *Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	SourceID     uint     `gorm:"index;not null" json:"source_id"`
	Source       *Source  `gorm:"foreignKey:SourceID" json:"source,omitempty"`
	MediaURL     string   `gorm:"not null" json:"media_url"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Caption      string   `gorm:"type:text" json:"caption"`

	// Engagement counters snapshotted at discovery
	Views         int `gorm:"default:0" json:"views"`
	Likes         int `gorm:"default:0" json:"likes"`
	Comments      int `gorm:"default:0" json:"comments"`
	Shares        int `gorm:"default:0" json:"shares"`
	FollowerCount int `gorm:"default:0" json:"follower_count"`

	// Compliance flags, set optimistically at discovery and re-verified
	// by the compliance agent before publication
	IsFromOfficial  bool `gorm:"default:true" json:"is_from_official"`
	HasWatermark    bool `gorm:"default:false" json:"has_watermark"`
	CreatorCredited bool `gorm:"default:true" json:"creator_credited"`

	// Scores persisted for audit
	ViralScore   int  `gorm:"default:0;index" json:"viral_score"`
	ScoreDetails JSON `gorm:"type:json" json:"score_details"`

	Status       ReelStatus `gorm:"default:'discovered';index" json:"status"`
	PostedAt     time.Time  `json:"posted_at"`
	DiscoveredAt time.Time  `gorm:"autoCreateTime;index" json:"discovered_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
