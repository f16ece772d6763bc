package models

import (
	"time"
)

// AccountStatus represents the state of a managed account
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// Account represents a managed Instagram account that reels are published to
type Account struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	MetaAccountID  string        `gorm:"uniqueIndex;not null" json:"meta_account_id"` // Graph API account ID
	Username       string        `gorm:"not null" json:"username"`
	AccessToken    string        `gorm:"not null" json:"-"`
	TokenExpiresAt *time.Time    `json:"token_expires_at"`
	Status         AccountStatus `gorm:"default:'active';index" json:"status"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive returns true if the account should be processed by the pipeline
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// Source represents a third-party account whose reels are candidates for republishing
type Source struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"not null" json:"name"`
	OfficialID      string    `gorm:"uniqueIndex;not null" json:"official_id"` // Graph API ID of the source account
	InstagramHandle string    `json:"instagram_handle"`
	FollowerCount   int       `json:"follower_count"` // snapshot copied onto discovered reels
	IsActive        bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
