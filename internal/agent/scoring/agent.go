package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/reels-agent/internal/agent"
	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
	"github.com/reels-agent/pkg/logger"
)

// Agent computes viral scores for discovered reels and gates them to
// approved or rejected against the account's threshold.
type Agent struct {
	repository storage.Repository
	log        *logger.Logger
}

// NewAgent creates a new scoring agent
func NewAgent(repository storage.Repository, log *logger.Logger) *Agent {
	return &Agent{
		repository: repository,
		log:        log.WithComponent("scoring"),
	}
}

// Result contains the results of a scoring run
type Result struct {
	Scored   int `json:"scored"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Errors   int `json:"errors"`
}

func (r *Result) Message() string {
	return fmt.Sprintf("scored %d reels: %d approved, %d rejected",
		r.Scored, r.Approved, r.Rejected)
}

// Type implements agent.Agent
func (a *Agent) Type() models.AgentType { return models.AgentScoring }

// Execute implements agent.Agent
func (a *Agent) Execute(ctx context.Context, in agent.Input) (agent.Result, error) {
	if in.AccountID == 0 {
		return nil, fmt.Errorf("account id is required")
	}

	stored, err := a.repository.GetSettings(ctx, in.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	settings := models.SettingsOrDefault(stored, in.AccountID)

	status := models.ReelStatusDiscovered
	pending, err := a.repository.ListReels(ctx, storage.ReelFilter{
		AccountID: &in.AccountID,
		Status:    &status,
		OrderBy:   "discovered_at",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reels: %w", err)
	}

	result := &Result{}
	now := time.Now()

	for _, reel := range pending {
		// A reel failing to score stays discovered for a later pass
		if err := a.scoreReel(ctx, reel, settings.ViralScoreThreshold, now); err != nil {
			a.log.Error().
				Err(err).
				Uint("reel_id", reel.ID).
				Msg("Failed to score reel")
			result.Errors++
			continue
		}

		result.Scored++
		if reel.Status == models.ReelStatusApproved {
			result.Approved++
		} else {
			result.Rejected++
		}
	}

	a.log.Info().
		Uint("account_id", in.AccountID).
		Int("scored", result.Scored).
		Int("approved", result.Approved).
		Int("rejected", result.Rejected).
		Msg("Scoring completed")

	return result, nil
}

func (a *Agent) scoreReel(ctx context.Context, reel *models.Reel, threshold int, now time.Time) error {
	scores := ComputeScores(reel, now)
	composite := scores.Composite()

	reel.ViralScore = composite
	reel.ScoreDetails = scores.Details()
	if composite >= threshold {
		reel.Status = models.ReelStatusApproved
	} else {
		reel.Status = models.ReelStatusRejected
	}

	return a.repository.UpdateReel(ctx, reel)
}
