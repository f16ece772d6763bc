package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reels-agent/internal/agent"
	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
	"github.com/reels-agent/internal/storage/sqlite"
	"github.com/reels-agent/pkg/logger"
)

func TestHasCaptionCredit(t *testing.T) {
	tests := []struct {
		name    string
		caption string
		want    bool
	}{
		{"credit marker", "Amazing sunset. Credit: the resort team", true},
		{"credit marker lowercase", "credit: island life", true},
		{"camera emoji", "Overwater villas 📷 island life", true},
		{"video by marker", "Video by our dive instructors", true},
		{"handle mention", "Throwback with @soneva.fushi", true},
		{"no credit", "Just another day in paradise", false},
		{"empty caption", "", false},
		{"bare at sign", "Meet us @ the beach bar", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasCaptionCredit(tt.caption))
		})
	}
}

func TestViolations(t *testing.T) {
	clean := &models.Reel{
		IsFromOfficial:  true,
		HasWatermark:    false,
		CreatorCredited: true,
		Caption:         "Credit: @resort",
	}
	assert.Empty(t, Violations(clean))

	dirty := &models.Reel{
		IsFromOfficial:  false,
		HasWatermark:    true,
		CreatorCredited: false,
		Caption:         "no attribution here",
	}
	assert.Len(t, Violations(dirty), 4)

	watermarked := &models.Reel{
		IsFromOfficial:  true,
		HasWatermark:    true,
		CreatorCredited: true,
		Caption:         "Credit: @resort",
	}
	got := Violations(watermarked)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "watermark")
}

func TestExecuteDemotesViolatingReels(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a := NewAgent(repo, logger.New(logger.Config{Level: "error"}))

	ok := seedApprovedReel(t, repo, "reel-ok", "Sunset dinner 📷 @resort")
	bad := seedApprovedReel(t, repo, "reel-bad", "no attribution here")

	result, err := a.Execute(ctx, agent.Input{AccountID: 1})
	require.NoError(t, err)

	r := result.(*Result)
	assert.Equal(t, 1, r.Verified)
	assert.Equal(t, 1, r.Rejected)

	got, err := repo.GetReelByID(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReelStatusApproved, got.Status)

	got, err = repo.GetReelByID(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReelStatusRejected, got.Status)
}

func TestExecuteSkipsUnapprovedReels(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a := NewAgent(repo, logger.New(logger.Config{Level: "error"}))

	reel := seedApprovedReel(t, repo, "reel-discovered", "no attribution here")
	reel.Status = models.ReelStatusDiscovered
	require.NoError(t, repo.UpdateReel(ctx, reel))

	result, err := a.Execute(ctx, agent.Input{AccountID: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, result.(*Result).Rejected)

	got, err := repo.GetReelByID(ctx, reel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReelStatusDiscovered, got.Status)
}

func newTestRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedApprovedReel(t *testing.T, repo storage.Repository, metaID, caption string) *models.Reel {
	t.Helper()
	reel := &models.Reel{
		MetaID:          metaID,
		AccountID:       1,
		SourceID:        1,
		MediaURL:        "https://cdn.example.com/" + metaID + ".mp4",
		Caption:         caption,
		PostedAt:        time.Now().Add(-12 * time.Hour),
		Status:          models.ReelStatusApproved,
		IsFromOfficial:  true,
		CreatorCredited: true,
	}
	require.NoError(t, repo.CreateReel(context.Background(), reel))
	return reel
}
