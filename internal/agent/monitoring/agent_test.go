package monitoring

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

type stubResult struct{}

func (stubResult) Message() string { return "ok" }

// recordingAgent remembers every input it was invoked with
type recordingAgent struct {
	typ    models.AgentType
	inputs []agent.Input
}

func (s *recordingAgent) Type() models.AgentType { return s.typ }

func (s *recordingAgent) Execute(ctx context.Context, in agent.Input) (agent.Result, error) {
	s.inputs = append(s.inputs, in)
	return stubResult{}, nil
}

func newTestRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestAgent(repo storage.Repository) (*Agent, *recordingAgent, *recordingAgent) {
	log := logger.New(logger.Config{Level: "error"})
	runner := agent.NewRunner(repo, 1, time.Millisecond, log)
	publishing := &recordingAgent{typ: models.AgentPublishing}
	scheduling := &recordingAgent{typ: models.AgentScheduling}
	return NewAgent(repo, runner, publishing, scheduling, log), publishing, scheduling
}

func TestExecuteRetriesDuePublishes(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a, publishing, _ := newTestAgent(repo)

	due := time.Now().Add(-time.Minute)
	notYet := time.Now().Add(time.Hour)
	require.NoError(t, repo.CreatePublishAttempt(ctx, &models.PublishAttempt{
		ScheduleID:  11,
		AccountID:   1,
		Status:      models.PublishStatusRetrying,
		NextRetryAt: &due,
	}))
	require.NoError(t, repo.CreatePublishAttempt(ctx, &models.PublishAttempt{
		ScheduleID:  12,
		AccountID:   1,
		Status:      models.PublishStatusRetrying,
		NextRetryAt: &notYet,
	}))

	result, err := a.Execute(ctx, agent.Input{AccountID: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, result.(*Result).RetriedPublishes)
	require.Len(t, publishing.inputs, 1)
	assert.Equal(t, uint(11), publishing.inputs[0].ScheduleID)
}

func TestExecuteReplacesFailedSchedules(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a, _, scheduling := newTestAgent(repo)

	future := time.Now().Add(6 * time.Hour)
	failed := &models.Schedule{
		ReelID:       21,
		AccountID:    1,
		ScheduledFor: future,
		Status:       models.ScheduleStatusFailed,
	}
	require.NoError(t, repo.CreateSchedule(ctx, failed))

	// A failed schedule in the past stays as history
	past := time.Now().Add(-6 * time.Hour)
	require.NoError(t, repo.CreateSchedule(ctx, &models.Schedule{
		ReelID:       22,
		AccountID:    1,
		ScheduledFor: past,
		Status:       models.ScheduleStatusFailed,
	}))

	result, err := a.Execute(ctx, agent.Input{AccountID: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, result.(*Result).SchedulesReplaced)
	require.Len(t, scheduling.inputs, 1)
	require.NotNil(t, scheduling.inputs[0].TargetDate)
	assert.WithinDuration(t, future, *scheduling.inputs[0].TargetDate, time.Second)

	got, err := repo.GetScheduleByID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusDeleted, got.Status)
}

func TestExecuteRaisesAlerts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a, _, _ := newTestAgent(repo)

	resetAt := time.Now().Add(30 * time.Minute)
	require.NoError(t, repo.UpsertRateLimitWindow(ctx, &models.RateLimitWindow{
		AccountID:    1,
		Endpoint:     models.EndpointPublish,
		RequestCount: 200,
		WindowStart:  time.Now().Add(-time.Hour),
		WindowEnd:    time.Now(),
		IsLimited:    true,
		ResetAt:      &resetAt,
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreatePublishAttempt(ctx, &models.PublishAttempt{
			ScheduleID:  uint(30 + i),
			AccountID:   1,
			Status:      models.PublishStatusFailed,
			AttemptedAt: time.Now().Add(-10 * time.Minute),
		}))
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateRunLog(ctx, &models.AgentRunLog{
			AgentType: models.AgentDiscovery,
			AccountID: 1,
			Status:    models.RunStatusFailed,
			Error:     "boom",
			StartedAt: time.Now().Add(-20 * time.Minute),
		}))
	}

	result, err := a.Execute(ctx, agent.Input{AccountID: 1})
	require.NoError(t, err)

	r := result.(*Result)
	assert.Equal(t, 3, r.Alerts)
	assert.Equal(t, 3, r.FailedRunsSampled)
}

func TestExecuteQuietWhenHealthy(t *testing.T) {
	repo := newTestRepo(t)
	a, publishing, scheduling := newTestAgent(repo)

	result, err := a.Execute(context.Background(), agent.Input{AccountID: 1})
	require.NoError(t, err)

	r := result.(*Result)
	assert.Zero(t, r.RetriedPublishes)
	assert.Zero(t, r.SchedulesReplaced)
	assert.Zero(t, r.Alerts)
	assert.Empty(t, publishing.inputs)
	assert.Empty(t, scheduling.inputs)
}
