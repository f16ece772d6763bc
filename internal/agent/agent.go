package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/reels-agent/internal/models"
)

// Input is the uniform input every agent run receives. Only the fields a
// given agent cares about are set.
type Input struct {
	AccountID  uint       `json:"account_id,omitempty"`
	ScheduleID uint       `json:"schedule_id,omitempty"`
	TargetDate *time.Time `json:"target_date,omitempty"`
}

// Result is one agent's typed run output. Each agent package defines its own
// result record; Message is the human-readable summary stored on the run log.
type Result interface {
	Message() string
}

// Agent is one pipeline stage invoked through the Runner harness
type Agent interface {
	Type() models.AgentType
	Execute(ctx context.Context, in Input) (Result, error)
}

// Outcome is the terminal result of one harness run
type Outcome struct {
	Success bool
	Result  Result
	Err     error
}

// toJSON converts a value to the JSON column type for run-log persistence
func toJSON(v interface{}) models.JSON {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out models.JSON
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
