package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsOrDefaultFillsEverything(t *testing.T) {
	s := SettingsOrDefault(nil, 7)

	assert.Equal(t, uint(7), s.AccountID)
	assert.Equal(t, StringSlice(DefaultTimeSlots), s.PostingSchedule)
	assert.Equal(t, DefaultDailyReelCount, s.DailyReelCount)
	assert.Equal(t, DefaultMinReelGapMinutes, s.MinReelGapMinutes)
	assert.Equal(t, DefaultViralScoreThreshold, s.ViralScoreThreshold)
}

func TestSettingsOrDefaultKeepsStoredValues(t *testing.T) {
	stored := &Settings{
		AccountID:           7,
		PostingSchedule:     StringSlice{"08:00"},
		DailyReelCount:      1,
		ViralScoreThreshold: 90,
	}

	s := SettingsOrDefault(stored, 7)
	assert.Equal(t, StringSlice{"08:00"}, s.PostingSchedule)
	assert.Equal(t, 1, s.DailyReelCount)
	assert.Equal(t, 90, s.ViralScoreThreshold)
	// Only the missing field is defaulted
	assert.Equal(t, DefaultMinReelGapMinutes, s.MinReelGapMinutes)

	// The stored row itself is never mutated
	assert.Zero(t, stored.MinReelGapMinutes)
}
