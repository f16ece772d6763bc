package scheduling

import (
	"context"
	"fmt"
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

func newTestRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestAgent(repo storage.Repository) *Agent {
	return NewAgent(repo, logger.New(logger.Config{Level: "error"}))
}

func seedApproved(t *testing.T, repo storage.Repository, score int) *models.Reel {
	t.Helper()
	reel := &models.Reel{
		MetaID:     fmt.Sprintf("reel-%d-%d", score, time.Now().UnixNano()),
		AccountID:  1,
		SourceID:   1,
		MediaURL:   "https://cdn.example.com/reel.mp4",
		ViralScore: score,
		Status:     models.ReelStatusApproved,
		PostedAt:   time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, repo.CreateReel(context.Background(), reel))
	return reel
}

func tomorrow() time.Time {
	return time.Now().AddDate(0, 0, 1)
}

func TestExecuteFillsSlotsBestScoreFirst(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a := newTestAgent(repo)

	low := seedApproved(t, repo, 72)
	high := seedApproved(t, repo, 95)

	target := tomorrow()
	result, err := a.Execute(ctx, agent.Input{AccountID: 1, TargetDate: &target})
	require.NoError(t, err)

	r := result.(*Result)
	assert.Equal(t, 2, r.Scheduled)
	assert.Len(t, r.ScheduleIDs, 2)

	schedules, err := repo.ListSchedules(ctx, storage.ScheduleFilter{OrderByTime: true})
	require.NoError(t, err)
	require.Len(t, schedules, 2)

	// Highest score takes the earliest slot (12:00), next takes 15:00
	assert.Equal(t, high.ID, schedules[0].ReelID)
	assert.Equal(t, 12, schedules[0].ScheduledFor.Hour())
	assert.Equal(t, low.ID, schedules[1].ReelID)
	assert.Equal(t, 15, schedules[1].ScheduledFor.Hour())

	for _, reelID := range []uint{high.ID, low.ID} {
		reel, err := repo.GetReelByID(ctx, reelID)
		require.NoError(t, err)
		assert.Equal(t, models.ReelStatusScheduled, reel.Status)
	}
}

func TestExecuteSkipsOccupiedSlots(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a := newTestAgent(repo)

	target := tomorrow()
	noon := time.Date(target.Year(), target.Month(), target.Day(), 12, 0, 0, 0, target.Location())

	blocker := seedApproved(t, repo, 99)
	require.NoError(t, repo.CreateSchedule(ctx, &models.Schedule{
		ReelID:       blocker.ID,
		AccountID:    1,
		ScheduledFor: noon,
		Status:       models.ScheduleStatusScheduled,
	}))
	blocker.Status = models.ReelStatusScheduled
	require.NoError(t, repo.UpdateReel(ctx, blocker))

	reel := seedApproved(t, repo, 80)

	result, err := a.Execute(ctx, agent.Input{AccountID: 1, TargetDate: &target})
	require.NoError(t, err)
	assert.Equal(t, 1, result.(*Result).Scheduled)

	schedules, err := repo.ListSchedules(ctx, storage.ScheduleFilter{OrderByTime: true})
	require.NoError(t, err)
	require.Len(t, schedules, 2)

	// 12:00 is taken, the new reel lands on 15:00
	assert.Equal(t, reel.ID, schedules[1].ReelID)
	assert.Equal(t, 15, schedules[1].ScheduledFor.Hour())
}

func TestExecuteReclaimsSlotsOfTerminalSchedules(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a := newTestAgent(repo)

	target := tomorrow()
	noon := time.Date(target.Year(), target.Month(), target.Day(), 12, 0, 0, 0, target.Location())

	// A failed schedule does not occupy its slot
	failed := seedApproved(t, repo, 99)
	require.NoError(t, repo.CreateSchedule(ctx, &models.Schedule{
		ReelID:       failed.ID,
		AccountID:    1,
		ScheduledFor: noon,
		Status:       models.ScheduleStatusFailed,
	}))
	failed.Status = models.ReelStatusFailed
	require.NoError(t, repo.UpdateReel(ctx, failed))

	reel := seedApproved(t, repo, 80)

	result, err := a.Execute(ctx, agent.Input{AccountID: 1, TargetDate: &target})
	require.NoError(t, err)
	assert.Equal(t, 1, result.(*Result).Scheduled)

	st := models.ScheduleStatusScheduled
	schedules, err := repo.ListSchedules(ctx, storage.ScheduleFilter{Status: &st})
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, reel.ID, schedules[0].ReelID)
	assert.Equal(t, 12, schedules[0].ScheduledFor.Hour())
}

func TestExecuteNeverDoubleBooksAReel(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a := newTestAgent(repo)

	seedApproved(t, repo, 90)

	target := tomorrow()
	result, err := a.Execute(ctx, agent.Input{AccountID: 1, TargetDate: &target})
	require.NoError(t, err)
	assert.Equal(t, 1, result.(*Result).Scheduled)

	// Second run for the next day finds no eligible reels
	next := target.AddDate(0, 0, 1)
	result, err = a.Execute(ctx, agent.Input{AccountID: 1, TargetDate: &next})
	require.NoError(t, err)
	assert.Equal(t, 0, result.(*Result).Scheduled)
	assert.Equal(t, "no available reels to schedule", result.(*Result).Note)
}

func TestExecuteShortCircuitsWhenDayIsFull(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a := newTestAgent(repo)

	target := tomorrow()
	for _, slot := range models.DefaultTimeSlots {
		var hour, minute int
		_, err := fmt.Sscanf(slot, "%d:%d", &hour, &minute)
		require.NoError(t, err)

		blocker := seedApproved(t, repo, 90)
		require.NoError(t, repo.CreateSchedule(ctx, &models.Schedule{
			ReelID:       blocker.ID,
			AccountID:    1,
			ScheduledFor: time.Date(target.Year(), target.Month(), target.Day(), hour, minute, 0, 0, target.Location()),
			Status:       models.ScheduleStatusScheduled,
		}))
	}
	seedApproved(t, repo, 85)

	result, err := a.Execute(ctx, agent.Input{AccountID: 1, TargetDate: &target})
	require.NoError(t, err)
	assert.Equal(t, 0, result.(*Result).Scheduled)
	assert.Equal(t, "no available slots for this date", result.(*Result).Note)
}

func TestExecuteHonorsDailyReelCount(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a := newTestAgent(repo)

	require.NoError(t, repo.SaveSettings(ctx, &models.Settings{
		AccountID:      1,
		DailyReelCount: 2,
	}))

	for i := 0; i < 4; i++ {
		seedApproved(t, repo, 80+i)
	}

	target := tomorrow()
	result, err := a.Execute(ctx, agent.Input{AccountID: 1, TargetDate: &target})
	require.NoError(t, err)
	assert.Equal(t, 2, result.(*Result).Scheduled)
}

func TestParseSlot(t *testing.T) {
	hour, minute, err := parseSlot("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9, hour)
	assert.Equal(t, 30, minute)

	for _, bad := range []string{"9", "25:00", "12:75", "ab:cd", ""} {
		_, _, err := parseSlot(bad)
		assert.Error(t, err, bad)
	}
}
