package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestClaimScheduleIsExclusive(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	schedule := &models.Schedule{
		ReelID:       1,
		AccountID:    1,
		ScheduledFor: time.Now(),
		Status:       models.ScheduleStatusScheduled,
	}
	require.NoError(t, repo.CreateSchedule(ctx, schedule))

	claimed, err := repo.ClaimSchedule(ctx, schedule.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim on the same schedule loses
	claimed, err = repo.ClaimSchedule(ctx, schedule.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	// Releasing hands it back
	require.NoError(t, repo.ReleaseSchedule(ctx, schedule.ID))
	claimed, err = repo.ClaimSchedule(ctx, schedule.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaimScheduleIgnoresTerminalStates(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	schedule := &models.Schedule{
		ReelID:       1,
		AccountID:    1,
		ScheduledFor: time.Now(),
		Status:       models.ScheduleStatusPublished,
	}
	require.NoError(t, repo.CreateSchedule(ctx, schedule))

	claimed, err := repo.ClaimSchedule(ctx, schedule.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestUpsertRateLimitWindowKeepsOneRowPerEndpoint(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Now()
	require.NoError(t, repo.UpsertRateLimitWindow(ctx, &models.RateLimitWindow{
		AccountID:    1,
		Endpoint:     models.EndpointPublish,
		RequestCount: 10,
		WindowStart:  now.Add(-time.Hour),
		WindowEnd:    now,
	}))

	resetAt := now.Add(time.Hour)
	require.NoError(t, repo.UpsertRateLimitWindow(ctx, &models.RateLimitWindow{
		AccountID:    1,
		Endpoint:     models.EndpointPublish,
		RequestCount: 200,
		WindowStart:  now.Add(-30 * time.Minute),
		WindowEnd:    now,
		IsLimited:    true,
		ResetAt:      &resetAt,
	}))

	window, err := repo.GetActiveRateLimit(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, window)
	assert.Equal(t, 200, window.RequestCount)
	require.NotNil(t, window.ResetAt)
}

func TestGetActiveRateLimitReturnsNilWhenClear(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	window, err := repo.GetActiveRateLimit(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, window)
}

func TestGetReelByMetaIDMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	reel, err := repo.GetReelByMetaID(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, reel)
}

func TestListReelsOrderingAndExclusion(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	older := &models.Reel{
		MetaID: "m-old", AccountID: 1, SourceID: 1,
		MediaURL: "u", ViralScore: 80,
		Status: models.ReelStatusApproved, PostedAt: time.Now(),
	}
	require.NoError(t, repo.CreateReel(ctx, older))
	best := &models.Reel{
		MetaID: "m-best", AccountID: 1, SourceID: 1,
		MediaURL: "u", ViralScore: 95,
		Status: models.ReelStatusApproved, PostedAt: time.Now(),
	}
	require.NoError(t, repo.CreateReel(ctx, best))

	status := models.ReelStatusApproved
	reels, err := repo.ListReels(ctx, storage.ReelFilter{
		Status:    &status,
		OrderBy:   "viral_score",
		OrderDesc: true,
	})
	require.NoError(t, err)
	require.Len(t, reels, 2)
	assert.Equal(t, "m-best", reels[0].MetaID)

	reels, err = repo.ListReels(ctx, storage.ReelFilter{
		Status:     &status,
		ExcludeIDs: []uint{best.ID},
	})
	require.NoError(t, err)
	require.Len(t, reels, 1)
	assert.Equal(t, "m-old", reels[0].MetaID)
}

func TestListDuePublishRetries(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	due := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	require.NoError(t, repo.CreatePublishAttempt(ctx, &models.PublishAttempt{
		ScheduleID: 1, AccountID: 1,
		Status: models.PublishStatusRetrying, NextRetryAt: &due,
	}))
	require.NoError(t, repo.CreatePublishAttempt(ctx, &models.PublishAttempt{
		ScheduleID: 2, AccountID: 1,
		Status: models.PublishStatusRetrying, NextRetryAt: &future,
	}))
	require.NoError(t, repo.CreatePublishAttempt(ctx, &models.PublishAttempt{
		ScheduleID: 3, AccountID: 1,
		Status: models.PublishStatusFailed, NextRetryAt: &due,
	}))

	attempts, err := repo.ListDuePublishRetries(ctx, 1, time.Now())
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, uint(1), attempts[0].ScheduleID)
}

func TestRunLogLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	runLog := &models.AgentRunLog{
		AgentType: models.AgentScoring,
		AccountID: 1,
		Status:    models.RunStatusRunning,
		Input:     models.JSON{"account_id": 1},
		StartedAt: time.Now(),
	}
	require.NoError(t, repo.CreateRunLog(ctx, runLog))

	now := time.Now()
	runLog.Status = models.RunStatusFailed
	runLog.Error = "boom"
	runLog.CompletedAt = &now
	require.NoError(t, repo.UpdateRunLog(ctx, runLog))

	failed, err := repo.ListFailedRunsSince(ctx, time.Now().Add(-time.Minute), 5)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Error)

	count, err := repo.CountFailedRunsSince(ctx, 1, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
