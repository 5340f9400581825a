package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrequencyUnitWindowStart(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(-24*time.Hour), FrequencyDay.WindowStart(now, 1))
	assert.Equal(t, now.Add(-14*24*time.Hour), FrequencyWeek.WindowStart(now, 2))
	assert.Equal(t, now.AddDate(0, -1, 0), FrequencyMonth.WindowStart(now, 1))
	assert.Equal(t, now.Add(-24*time.Hour), FrequencyDay.WindowStart(now, 0))
}

func TestNotificationRuleReached(t *testing.T) {
	percent := NotificationRule{Threshold: 80, ThresholdType: ThresholdPercent}
	assert.True(t, percent.Reached(80, 100))
	assert.False(t, percent.Reached(79, 100))
	assert.False(t, percent.Reached(79, 0))
	assert.True(t, percent.Reached(80, 0))

	absolute := NotificationRule{Threshold: 50, ThresholdType: ThresholdAbsolute}
	assert.True(t, absolute.Reached(50, 1000))
	assert.False(t, absolute.Reached(49, 60))
}

func TestNotificationRuleDue(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	rule := NotificationRule{Frequency: 1, FrequencyUnit: FrequencyDay}
	assert.True(t, rule.Due(now))

	sent := now.Add(-23 * time.Hour)
	rule.LastSentAt = &sent
	assert.False(t, rule.Due(now))

	sent = now.Add(-24 * time.Hour)
	assert.True(t, rule.Due(now))
}

func TestComputeStatus(t *testing.T) {
	assert.Equal(t, StatusUnderLimit, ComputeStatus(500, 0, 80))
	assert.Equal(t, StatusUnderLimit, ComputeStatus(79, 100, 80))
	assert.Equal(t, StatusNearThreshold, ComputeStatus(80, 100, 80))
	assert.Equal(t, StatusOverLimit, ComputeStatus(100, 100, 80))
}
