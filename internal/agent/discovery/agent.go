package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/reels-agent/internal/agent"
	"github.com/reels-agent/internal/meta"
	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
	"github.com/reels-agent/pkg/logger"
)

// recencyWindow bounds discovery to recently posted media
const recencyWindow = 7 * 24 * time.Hour

// Platform is the slice of the Graph client discovery needs
type Platform interface {
	FetchCandidateMedia(ctx context.Context, sourceID, accessToken string) ([]meta.MediaSummary, error)
	FetchMediaDetail(ctx context.Context, mediaID, accessToken string) (*meta.MediaDetail, error)
}

// Agent ingests candidate reels from every active source account.
// Discovery is idempotent: an already-known external media id is skipped.
type Agent struct {
	repository storage.Repository
	platform   Platform
	log        *logger.Logger
}

// NewAgent creates a new discovery agent
func NewAgent(repository storage.Repository, platform Platform, log *logger.Logger) *Agent {
	return &Agent{
		repository: repository,
		platform:   platform,
		log:        log.WithComponent("discovery"),
	}
}

// Result contains the results of a discovery run
type Result struct {
	Discovered   int `json:"discovered"`
	Skipped      int `json:"skipped"`
	SourceErrors int `json:"source_errors"`
}

func (r *Result) Message() string {
	return fmt.Sprintf("discovered %d new reels (%d skipped, %d source errors)",
		r.Discovered, r.Skipped, r.SourceErrors)
}

// Type implements agent.Agent
func (a *Agent) Type() models.AgentType { return models.AgentDiscovery }

// Execute implements agent.Agent
func (a *Agent) Execute(ctx context.Context, in agent.Input) (agent.Result, error) {
	if in.AccountID == 0 {
		return nil, fmt.Errorf("account id is required")
	}

	account, err := a.repository.GetAccountByID(ctx, in.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account not found: %w", err)
	}

	sources, err := a.repository.ListActiveSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	result := &Result{}
	if len(sources) == 0 {
		a.log.Warn().Msg("No active sources configured")
		return result, nil
	}

	cutoff := time.Now().Add(-recencyWindow)

	// One source failing must not abort discovery for the others
	for _, source := range sources {
		if err := a.discoverSource(ctx, account, source, cutoff, result); err != nil {
			a.log.Error().
				Err(err).
				Str("source", source.Name).
				Msg("Source discovery failed")
			result.SourceErrors++
		}
	}

	a.log.Info().
		Uint("account_id", account.ID).
		Int("discovered", result.Discovered).
		Int("skipped", result.Skipped).
		Int("source_errors", result.SourceErrors).
		Msg("Discovery completed")

	return result, nil
}

func (a *Agent) discoverSource(ctx context.Context, account *models.Account, source *models.Source, cutoff time.Time, result *Result) error {
	candidates, err := a.platform.FetchCandidateMedia(ctx, source.OfficialID, account.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to fetch candidates: %w", err)
	}

	for _, candidate := range candidates {
		if !candidate.IsVideo() || candidate.PostedAt.Before(cutoff) {
			continue
		}

		existing, err := a.repository.GetReelByMetaID(ctx, candidate.MetaID)
		if err != nil {
			return fmt.Errorf("failed to look up reel %s: %w", candidate.MetaID, err)
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		reel := &models.Reel{
			MetaID:        candidate.MetaID,
			AccountID:     account.ID,
			SourceID:      source.ID,
			MediaURL:      candidate.MediaURL,
			ThumbnailURL:  candidate.ThumbnailURL,
			Caption:       candidate.Caption,
			Likes:         candidate.Likes,
			Comments:      candidate.Comments,
			FollowerCount: source.FollowerCount,
			PostedAt:      candidate.PostedAt,
			Status:        models.ReelStatusDiscovered,
			// Optimistic defaults, reconciled by the compliance agent
			IsFromOfficial:  true,
			HasWatermark:    false,
			CreatorCredited: true,
		}

		// View/share counters only come back from the detail endpoint;
		// missing detail is tolerated, the reel just scores lower
		if detail, derr := a.platform.FetchMediaDetail(ctx, candidate.MetaID, account.AccessToken); derr == nil && detail != nil {
			reel.Views = detail.Views
			reel.Shares = detail.Shares
			if reel.MediaURL == "" {
				reel.MediaURL = detail.MediaURL
			}
			if reel.ThumbnailURL == "" {
				reel.ThumbnailURL = detail.ThumbnailURL
			}
		}

		if err := a.repository.CreateReel(ctx, reel); err != nil {
			a.log.Warn().
				Err(err).
				Str("meta_id", candidate.MetaID).
				Msg("Failed to save reel")
			result.Skipped++
			continue
		}
		result.Discovered++
	}

	return nil
}
