package compliance

import (
	"context"
	"fmt"
	"regexp"

	"github.com/reels-agent/internal/agent"
	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
	"github.com/reels-agent/pkg/logger"
)

// captionCreditPatterns match the accepted ways a caption can credit the
// original creator: a "credit:" line, a camera-emoji marker, "video by",
// or an @-handle mention.
var captionCreditPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)credit:`),
	regexp.MustCompile(`📷`),
	regexp.MustCompile(`(?i)video by`),
	regexp.MustCompile(`@[\w.]+`),
}

// Agent re-verifies approved reels against the content rules before they
// can be scheduled. Discovery applies optimistic compliance defaults, so
// this pass exists to independently confirm them.
type Agent struct {
	repository storage.Repository
	log        *logger.Logger
}

// NewAgent creates a new compliance agent
func NewAgent(repository storage.Repository, log *logger.Logger) *Agent {
	return &Agent{
		repository: repository,
		log:        log.WithComponent("compliance"),
	}
}

// Result contains the results of a compliance run
type Result struct {
	Verified int `json:"verified"`
	Rejected int `json:"rejected"`
}

func (r *Result) Message() string {
	return fmt.Sprintf("compliance check complete: %d verified, %d rejected",
		r.Verified, r.Rejected)
}

// Type implements agent.Agent
func (a *Agent) Type() models.AgentType { return models.AgentCompliance }

// Execute implements agent.Agent
func (a *Agent) Execute(ctx context.Context, in agent.Input) (agent.Result, error) {
	if in.AccountID == 0 {
		return nil, fmt.Errorf("account id is required")
	}

	status := models.ReelStatusApproved
	approved, err := a.repository.ListReels(ctx, storage.ReelFilter{
		AccountID: &in.AccountID,
		Status:    &status,
		OrderBy:   "discovered_at",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list approved reels: %w", err)
	}

	result := &Result{}

	for _, reel := range approved {
		violations := Violations(reel)
		if len(violations) == 0 {
			result.Verified++
			continue
		}

		a.log.Info().
			Uint("reel_id", reel.ID).
			Strs("violations", violations).
			Msg("Reel demoted by compliance check")

		reel.Status = models.ReelStatusRejected
		if err := a.repository.UpdateReel(ctx, reel); err != nil {
			// A reel we could not demote is still a rejection for the
			// counters; the next pass will pick it up again
			a.log.Error().
				Err(err).
				Uint("reel_id", reel.ID).
				Msg("Failed to update reel status")
		}
		result.Rejected++
	}

	a.log.Info().
		Uint("account_id", in.AccountID).
		Int("verified", result.Verified).
		Int("rejected", result.Rejected).
		Msg("Compliance completed")

	return result, nil
}

// Violations returns every content rule the reel breaks. All four checks
// must hold for the reel to remain approved.
func Violations(reel *models.Reel) []string {
	var violations []string

	if !reel.IsFromOfficial {
		violations = append(violations, "not from official source account")
	}
	if reel.HasWatermark {
		violations = append(violations, "contains watermark")
	}
	if !reel.CreatorCredited {
		violations = append(violations, "creator not credited")
	}
	if !HasCaptionCredit(reel.Caption) {
		violations = append(violations, "missing creator credit in caption")
	}

	return violations
}

// HasCaptionCredit reports whether the caption contains any accepted
// credit marker.
func HasCaptionCredit(caption string) bool {
	if caption == "" {
		return false
	}
	for _, pattern := range captionCreditPatterns {
		if pattern.MatchString(caption) {
			return true
		}
	}
	return false
}
