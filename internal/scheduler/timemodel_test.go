package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationUnits(t *testing.T) {
	m := DefaultTimeModel()
	assert.Equal(t, 12, m.DurationUnits(3600))
	assert.Equal(t, 2, m.DurationUnits(700))
}

func TestWallClock(t *testing.T) {
	m := DefaultTimeModel()
	firstDay := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	got := m.WallClock(firstDay, 2, 4)
	want := time.Date(2026, 9, 3, 8, 50, 0, 0, time.UTC)
	assert.True(t, got.Equal(want), "got %v want %v", got, want)
}
