package scheduling

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/reels-agent/internal/agent"
	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
	"github.com/reels-agent/pkg/logger"
)

// Agent allocates approved reels to the account's configured daily time
// slots. Also invoked reactively by the monitoring agent to backfill a slot
// vacated by a failed schedule.
type Agent struct {
	repository storage.Repository
	log        *logger.Logger
}

// NewAgent creates a new scheduling agent
func NewAgent(repository storage.Repository, log *logger.Logger) *Agent {
	return &Agent{
		repository: repository,
		log:        log.WithComponent("scheduling"),
	}
}

// Result contains the results of a scheduling run
type Result struct {
	Scheduled   int    `json:"scheduled"`
	Date        string `json:"date,omitempty"`
	ScheduleIDs []uint `json:"schedule_ids,omitempty"`
	Note        string `json:"note,omitempty"`
}

func (r *Result) Message() string {
	if r.Note != "" {
		return r.Note
	}
	return fmt.Sprintf("scheduled %d reels for %s", r.Scheduled, r.Date)
}

// Type implements agent.Agent
func (a *Agent) Type() models.AgentType { return models.AgentScheduling }

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

	// Default target is the next calendar day
	targetDate := time.Now().AddDate(0, 0, 1)
	if in.TargetDate != nil {
		targetDate = *in.TargetDate
	}

	slots, err := a.availableSlots(ctx, in.AccountID, targetDate,
		settings.PostingSchedule, settings.DailyReelCount)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return &Result{Note: "no available slots for this date"}, nil
	}

	reels, err := a.eligibleReels(ctx, in.AccountID, len(slots))
	if err != nil {
		return nil, err
	}
	if len(reels) == 0 {
		return &Result{Note: "no available reels to schedule"}, nil
	}

	result := &Result{Date: targetDate.Format("2006-01-02")}

	// Highest score pairs with the earliest available slot
	for i := 0; i < len(reels) && i < len(slots); i++ {
		reel := reels[i]
		schedule := &models.Schedule{
			ReelID:       reel.ID,
			AccountID:    in.AccountID,
			ScheduledFor: slots[i],
			Status:       models.ScheduleStatusScheduled,
		}
		if err := a.repository.CreateSchedule(ctx, schedule); err != nil {
			return nil, fmt.Errorf("failed to create schedule for reel %d: %w", reel.ID, err)
		}

		reel.Status = models.ReelStatusScheduled
		if err := a.repository.UpdateReel(ctx, reel); err != nil {
			return nil, fmt.Errorf("failed to transition reel %d: %w", reel.ID, err)
		}

		result.Scheduled++
		result.ScheduleIDs = append(result.ScheduleIDs, schedule.ID)

		a.log.Info().
			Uint("reel_id", reel.ID).
			Uint("schedule_id", schedule.ID).
			Int("viral_score", reel.ViralScore).
			Time("scheduled_for", slots[i]).
			Msg("Reel scheduled")
	}

	return result, nil
}

// availableSlots walks the configured time slots in order and returns those
// whose minute-of-day is not already taken by a non-terminal schedule on the
// target date, up to dailyCount. Fewer slots than the target is not an error.
func (a *Agent) availableSlots(ctx context.Context, accountID uint, targetDate time.Time, timeSlots []string, dailyCount int) ([]time.Time, error) {
	dayStart := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)

	existing, err := a.repository.ListSchedules(ctx, storage.ScheduleFilter{
		AccountID: &accountID,
		StatusNotIn: []models.ScheduleStatus{
			models.ScheduleStatusFailed,
			models.ScheduleStatusDeleted,
		},
		From: &dayStart,
		To:   &dayEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list existing schedules: %w", err)
	}

	occupied := make(map[int]bool, len(existing))
	for _, schedule := range existing {
		occupied[schedule.ScheduledFor.Hour()*60+schedule.ScheduledFor.Minute()] = true
	}

	var available []time.Time
	for _, slot := range timeSlots {
		hour, minute, err := parseSlot(slot)
		if err != nil {
			a.log.Warn().Str("slot", slot).Msg("Skipping malformed time slot")
			continue
		}

		if occupied[hour*60+minute] {
			continue
		}

		available = append(available, time.Date(
			targetDate.Year(), targetDate.Month(), targetDate.Day(),
			hour, minute, 0, 0, targetDate.Location()))

		if len(available) >= dailyCount {
			break
		}
	}

	return available, nil
}

// eligibleReels returns approved reels with no active schedule, best score
// first with freshness as the tie-break.
func (a *Agent) eligibleReels(ctx context.Context, accountID uint, count int) ([]*models.Reel, error) {
	active, err := a.repository.ListSchedules(ctx, storage.ScheduleFilter{
		AccountID: &accountID,
		StatusIn:  models.ActiveScheduleStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}

	excludeIDs := make([]uint, 0, len(active))
	for _, schedule := range active {
		excludeIDs = append(excludeIDs, schedule.ReelID)
	}

	status := models.ReelStatusApproved
	reels, err := a.repository.ListReels(ctx, storage.ReelFilter{
		AccountID:            &accountID,
		Status:               &status,
		ExcludeIDs:           excludeIDs,
		OrderBy:              "viral_score",
		OrderDesc:            true,
		ThenByDiscoveredDesc: true,
		Limit:                count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list approved reels: %w", err)
	}
	return reels, nil
}

// parseSlot parses an "HH:MM" time-of-day value
func parseSlot(slot string) (hour, minute int, err error) {
	parts := strings.SplitN(slot, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed slot %q", slot)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed slot %q", slot)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed slot %q", slot)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("slot %q out of range", slot)
	}
	return hour, minute, nil
}
