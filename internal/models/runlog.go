package models

import (
	"time"
)

// AgentType identifies a pipeline stage
type AgentType string

const (
	AgentDiscovery  AgentType = "discovery"
	AgentScoring    AgentType = "scoring"
	AgentCompliance AgentType = "compliance"
	AgentScheduling AgentType = "scheduling"
	AgentPublishing AgentType = "publishing"
	AgentMonitoring AgentType = "monitoring"
)

// RunStatus represents the state of one harness invocation
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusRetrying  RunStatus = "retrying"
)

// AgentRunLog is one invocation record of the runner harness. Created when
// the run starts, mutated only by the harness, never deleted (audit trail).
type AgentRunLog struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	AgentType   AgentType  `gorm:"index;not null" json:"agent_type"`
	AccountID   uint       `gorm:"index" json:"account_id"`
	Status      RunStatus  `gorm:"default:'running';index" json:"status"`
	Input       JSON       `gorm:"type:json" json:"input"`
	Output      JSON       `gorm:"type:json" json:"output"`
	Error       string     `gorm:"type:text" json:"error"`
	RetryCount  int        `gorm:"default:0" json:"retry_count"`
	StartedAt   time.Time  `gorm:"index;not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	DurationMs  int64      `json:"duration_ms"`
}
